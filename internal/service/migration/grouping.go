// internal/service/migration/grouping.go
package migration

import (
	"sort"

	"crm-service/internal/domain/conversation"
	"crm-service/internal/domain/customer"
	"crm-service/internal/pkg/phone"
)

// identityKeys returns the keys a conversation's sender is known by, using
// the resolver's equality rules: lower-cased email and canonical phone.
func identityKeys(c *conversation.Conversation) []string {
	var keys []string
	if email := customer.NormalizeEmail(c.Sender.Email); email != "" {
		keys = append(keys, "email:"+email)
	}
	if p := phone.Normalize(c.Sender.Phone); p != "" {
		keys = append(keys, "phone:"+p)
	}
	return keys
}

// customerKeys returns every contact a customer owns, primary and alternate,
// in the same key space as identityKeys.
func customerKeys(c *customer.Customer) []string {
	var keys []string
	if email := customer.NormalizeEmail(c.Email); email != "" {
		keys = append(keys, "email:"+email)
	}
	if p := phone.Normalize(c.Phone); p != "" {
		keys = append(keys, "phone:"+p)
	}
	for _, alt := range c.AlternativeContacts {
		switch alt.Type {
		case customer.ContactEmail:
			if email := customer.NormalizeEmail(alt.Value); email != "" {
				keys = append(keys, "email:"+email)
			}
		case customer.ContactPhone:
			if p := phone.Normalize(alt.Value); p != "" {
				keys = append(keys, "phone:"+p)
			}
		}
	}
	return keys
}

// unionFind joins conversations that share any identity key, so a thread
// known by email and another known by phone merge through a third that
// carries both.
type unionFind struct {
	parent map[string]string
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[string]string)}
}

func (u *unionFind) find(x string) string {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
	}
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if ra < rb {
		u.parent[rb] = ra
	} else {
		u.parent[ra] = rb
	}
}

type group struct {
	key        string
	primary    *conversation.Conversation
	duplicates []*conversation.Conversation
}

// groupConversations returns every identity group with more than one
// conversation, plus the number of conversations that carried no key.
// Keys owned by one customer are joined first, so a thread known by the
// customer's email and another known by one of its alternate phones resolve
// to the same identity. The earliest-created conversation is primary; ties
// go to the lower id.
func groupConversations(convs []*conversation.Conversation, customers []*customer.Customer) ([]group, int) {
	uf := newUnionFind()
	for _, c := range customers {
		node := "cust:" + c.ID
		for _, k := range customerKeys(c) {
			uf.union(node, k)
		}
	}
	keysOf := make(map[string][]string, len(convs))
	unkeyed := 0

	for _, c := range convs {
		keys := identityKeys(c)
		if len(keys) == 0 {
			unkeyed++
			continue
		}
		keysOf[c.ID] = keys
		node := "conv:" + c.ID
		for _, k := range keys {
			uf.union(node, k)
		}
	}

	members := make(map[string][]*conversation.Conversation)
	groupKey := make(map[string]string)
	for _, c := range convs {
		keys, ok := keysOf[c.ID]
		if !ok {
			continue
		}
		root := uf.find("conv:" + c.ID)
		members[root] = append(members[root], c)
		for _, k := range keys {
			if cur, ok := groupKey[root]; !ok || k < cur {
				groupKey[root] = k
			}
		}
	}

	var groups []group
	for root, list := range members {
		if len(list) < 2 {
			continue
		}
		sort.SliceStable(list, func(i, j int) bool {
			if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
				return list[i].CreatedAt.Before(list[j].CreatedAt)
			}
			return list[i].ID < list[j].ID
		})
		groups = append(groups, group{
			key:        groupKey[root],
			primary:    list[0],
			duplicates: list[1:],
		})
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].key < groups[j].key })
	return groups, unkeyed
}
