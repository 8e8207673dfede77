package policy

import "os/user"

// systemGroupsOf returns the set of group names username belongs to,
// consulting the same NSS-ordered system lookup as os/user. A lookup
// failure yields an empty set rather than an error: an unknown user
// simply matches no "%group" principal.
func systemGroupsOf(username string) map[string]struct{} {
	groups := make(map[string]struct{})
	u, err := user.Lookup(username)
	if err != nil {
		return groups
	}
	gids, err := u.GroupIds()
	if err != nil {
		return groups
	}
	for _, gid := range gids {
		g, err := user.LookupGroupId(gid)
		if err != nil {
			continue
		}
		groups[g.Name] = struct{}{}
	}
	return groups
}
