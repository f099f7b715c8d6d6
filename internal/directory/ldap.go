package directory

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/go-ldap/ldap/v3"
)

// userAccountControl bits (Active Directory).
const (
	uacAccountDisable = 0x2
	uacNormalAccount  = 0x200
)

// LDAPConfig holds connection settings for the directory.
type LDAPConfig struct {
	URL          string // e.g. ldaps://dc1.example.org:636
	BindDN       string
	BindPassword string
	BaseDN       string
}

// LDAPClient implements Client against an LDAP/Active Directory server.
// Each operation binds with the service account on a fresh connection; the
// server side is the single source of truth and no state is cached.
type LDAPClient struct {
	cfg LDAPConfig
}

func NewLDAPClient(cfg LDAPConfig) (*LDAPClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("ldap url is required")
	}
	if cfg.BaseDN == "" {
		return nil, fmt.Errorf("ldap base dn is required")
	}
	return &LDAPClient{cfg: cfg}, nil
}

func (c *LDAPClient) withConn(ctx context.Context, fn func(conn *ldap.Conn) error) error {
	conn, err := ldap.DialURL(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial ldap: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetTimeout(time.Until(deadline))
	}
	if c.cfg.BindDN != "" {
		if err := conn.Bind(c.cfg.BindDN, c.cfg.BindPassword); err != nil {
			return fmt.Errorf("bind: %w", err)
		}
	}
	return fn(conn)
}

var userAttributes = []string{
	"sAMAccountName", "uid", "displayName", "cn", "mail",
	"userAccountControl", "lockoutTime", "memberOf", "distinguishedName",
}

func (c *LDAPClient) userFilter(userID string) string {
	escaped := ldap.EscapeFilter(userID)
	return fmt.Sprintf("(&(objectClass=user)(|(sAMAccountName=%s)(uid=%s)))", escaped, escaped)
}

func (c *LDAPClient) SearchUsers(ctx context.Context, query string) ([]*User, error) {
	filter := "(objectClass=user)"
	if q := strings.TrimSpace(query); q != "" {
		escaped := ldap.EscapeFilter(q)
		filter = fmt.Sprintf("(&(objectClass=user)(|(sAMAccountName=*%s*)(displayName=*%s*)(mail=*%s*)))",
			escaped, escaped, escaped)
	}
	var users []*User
	err := c.withConn(ctx, func(conn *ldap.Conn) error {
		req := ldap.NewSearchRequest(c.cfg.BaseDN, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases,
			0, 0, false, filter, userAttributes, nil)
		res, err := conn.Search(req)
		if err != nil {
			return fmt.Errorf("search users: %w", err)
		}
		for _, entry := range res.Entries {
			users = append(users, entryToUser(entry))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (c *LDAPClient) GetUser(ctx context.Context, userID string) (*User, error) {
	var user *User
	err := c.withConn(ctx, func(conn *ldap.Conn) error {
		entry, err := c.findUserEntry(conn, userID)
		if err != nil {
			return err
		}
		user = entryToUser(entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (c *LDAPClient) CreateUser(ctx context.Context, user *User, password string) error {
	dn := user.DN
	if dn == "" {
		ou := user.OrgUnit
		if ou == "" {
			ou = c.cfg.BaseDN
		}
		dn = fmt.Sprintf("cn=%s,%s", ldap.EscapeDN(user.ID), ou)
	}
	return c.withConn(ctx, func(conn *ldap.Conn) error {
		add := ldap.NewAddRequest(dn, nil)
		add.Attribute("objectClass", []string{"top", "person", "organizationalPerson", "user"})
		add.Attribute("sAMAccountName", []string{user.ID})
		if user.DisplayName != "" {
			add.Attribute("displayName", []string{user.DisplayName})
		}
		if user.Email != "" {
			add.Attribute("mail", []string{user.Email})
		}
		add.Attribute("userAccountControl", []string{strconv.Itoa(uacNormalAccount)})
		if err := conn.Add(add); err != nil {
			return fmt.Errorf("add user: %w", err)
		}
		if password != "" {
			mod := ldap.NewModifyRequest(dn, nil)
			mod.Replace("unicodePwd", []string{encodePassword(password)})
			if err := conn.Modify(mod); err != nil {
				return fmt.Errorf("set password: %w", err)
			}
		}
		return nil
	})
}

func (c *LDAPClient) ModifyUser(ctx context.Context, userID string, attrs map[string]string) error {
	return c.modifyUser(ctx, userID, func(mod *ldap.ModifyRequest) {
		for name, value := range attrs {
			if value == "" {
				mod.Replace(name, nil)
				continue
			}
			mod.Replace(name, []string{value})
		}
	})
}

func (c *LDAPClient) DeleteUser(ctx context.Context, userID string) error {
	return c.withConn(ctx, func(conn *ldap.Conn) error {
		entry, err := c.findUserEntry(conn, userID)
		if err != nil {
			return err
		}
		if err := conn.Del(ldap.NewDelRequest(entry.DN, nil)); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
}

// DisableAccount sets the ACCOUNTDISABLE bit. Disabling an already disabled
// account leaves the control value unchanged.
func (c *LDAPClient) DisableAccount(ctx context.Context, userID string) error {
	return c.setDisableBit(ctx, userID, true)
}

// EnableAccount clears the ACCOUNTDISABLE bit.
func (c *LDAPClient) EnableAccount(ctx context.Context, userID string) error {
	return c.setDisableBit(ctx, userID, false)
}

func (c *LDAPClient) setDisableBit(ctx context.Context, userID string, disable bool) error {
	return c.withConn(ctx, func(conn *ldap.Conn) error {
		entry, err := c.findUserEntry(conn, userID)
		if err != nil {
			return err
		}
		uac := parseUAC(entry)
		if disable {
			uac |= uacAccountDisable
		} else {
			uac &^= uacAccountDisable
		}
		mod := ldap.NewModifyRequest(entry.DN, nil)
		mod.Replace("userAccountControl", []string{strconv.Itoa(uac)})
		if err := conn.Modify(mod); err != nil {
			return fmt.Errorf("update userAccountControl: %w", err)
		}
		return nil
	})
}

// UnlockAccount resets lockoutTime, which clears an intruder lockout.
func (c *LDAPClient) UnlockAccount(ctx context.Context, userID string) error {
	return c.modifyUser(ctx, userID, func(mod *ldap.ModifyRequest) {
		mod.Replace("lockoutTime", []string{"0"})
	})
}

func (c *LDAPClient) MoveUser(ctx context.Context, userID, targetOU string) error {
	return c.withConn(ctx, func(conn *ldap.Conn) error {
		entry, err := c.findUserEntry(conn, userID)
		if err != nil {
			return err
		}
		rdn := strings.SplitN(entry.DN, ",", 2)[0]
		req := ldap.NewModifyDNRequest(entry.DN, rdn, true, targetOU)
		if err := conn.ModifyDN(req); err != nil {
			return fmt.Errorf("move user: %w", err)
		}
		return nil
	})
}

func (c *LDAPClient) ListGroups(ctx context.Context) ([]*Group, error) {
	var groups []*Group
	err := c.withConn(ctx, func(conn *ldap.Conn) error {
		req := ldap.NewSearchRequest(c.cfg.BaseDN, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases,
			0, 0, false, "(objectClass=group)", []string{"cn", "member", "distinguishedName"}, nil)
		res, err := conn.Search(req)
		if err != nil {
			return fmt.Errorf("search groups: %w", err)
		}
		for _, entry := range res.Entries {
			groups = append(groups, &Group{
				Name:    entry.GetAttributeValue("cn"),
				DN:      entry.DN,
				Members: entry.GetAttributeValues("member"),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}

func (c *LDAPClient) AddGroupMember(ctx context.Context, group, userID string) error {
	return c.changeMembership(ctx, group, userID, true)
}

func (c *LDAPClient) RemoveGroupMember(ctx context.Context, group, userID string) error {
	return c.changeMembership(ctx, group, userID, false)
}

func (c *LDAPClient) changeMembership(ctx context.Context, group, userID string, add bool) error {
	return c.withConn(ctx, func(conn *ldap.Conn) error {
		groupEntry, err := c.findGroupEntry(conn, group)
		if err != nil {
			return err
		}
		userEntry, err := c.findUserEntry(conn, userID)
		if err != nil {
			return err
		}
		mod := ldap.NewModifyRequest(groupEntry.DN, nil)
		if add {
			mod.Add("member", []string{userEntry.DN})
		} else {
			mod.Delete("member", []string{userEntry.DN})
		}
		if err := conn.Modify(mod); err != nil {
			return fmt.Errorf("modify group membership: %w", err)
		}
		return nil
	})
}

func (c *LDAPClient) ListOrgUnits(ctx context.Context) ([]*OrgUnit, error) {
	var units []*OrgUnit
	err := c.withConn(ctx, func(conn *ldap.Conn) error {
		req := ldap.NewSearchRequest(c.cfg.BaseDN, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases,
			0, 0, false, "(objectClass=organizationalUnit)", []string{"ou", "distinguishedName"}, nil)
		res, err := conn.Search(req)
		if err != nil {
			return fmt.Errorf("search org units: %w", err)
		}
		for _, entry := range res.Entries {
			units = append(units, &OrgUnit{
				Name: entry.GetAttributeValue("ou"),
				DN:   entry.DN,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return units, nil
}

func (c *LDAPClient) modifyUser(ctx context.Context, userID string, apply func(mod *ldap.ModifyRequest)) error {
	return c.withConn(ctx, func(conn *ldap.Conn) error {
		entry, err := c.findUserEntry(conn, userID)
		if err != nil {
			return err
		}
		mod := ldap.NewModifyRequest(entry.DN, nil)
		apply(mod)
		if err := conn.Modify(mod); err != nil {
			return fmt.Errorf("modify user: %w", err)
		}
		return nil
	})
}

func (c *LDAPClient) findUserEntry(conn *ldap.Conn, userID string) (*ldap.Entry, error) {
	req := ldap.NewSearchRequest(c.cfg.BaseDN, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases,
		2, 0, false, c.userFilter(userID), userAttributes, nil)
	res, err := conn.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search user %q: %w", userID, err)
	}
	if len(res.Entries) == 0 {
		return nil, ErrUserNotFound
	}
	if len(res.Entries) > 1 {
		return nil, fmt.Errorf("ambiguous user id %q", userID)
	}
	return res.Entries[0], nil
}

func (c *LDAPClient) findGroupEntry(conn *ldap.Conn, group string) (*ldap.Entry, error) {
	filter := fmt.Sprintf("(&(objectClass=group)(cn=%s))", ldap.EscapeFilter(group))
	req := ldap.NewSearchRequest(c.cfg.BaseDN, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases,
		2, 0, false, filter, []string{"cn", "distinguishedName"}, nil)
	res, err := conn.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search group %q: %w", group, err)
	}
	if len(res.Entries) == 0 {
		return nil, ErrGroupNotFound
	}
	return res.Entries[0], nil
}

func entryToUser(entry *ldap.Entry) *User {
	id := entry.GetAttributeValue("sAMAccountName")
	if id == "" {
		id = entry.GetAttributeValue("uid")
	}
	display := entry.GetAttributeValue("displayName")
	if display == "" {
		display = entry.GetAttributeValue("cn")
	}
	uac := parseUAC(entry)
	lockout := entry.GetAttributeValue("lockoutTime")
	return &User{
		ID:          id,
		DN:          entry.DN,
		DisplayName: display,
		Email:       entry.GetAttributeValue("mail"),
		Enabled:     uac&uacAccountDisable == 0,
		Locked:      lockout != "" && lockout != "0",
		Groups:      entry.GetAttributeValues("memberOf"),
		OrgUnit:     parentDN(entry.DN),
	}
}

func parseUAC(entry *ldap.Entry) int {
	uac, err := strconv.Atoi(entry.GetAttributeValue("userAccountControl"))
	if err != nil {
		return uacNormalAccount
	}
	return uac
}

func parentDN(dn string) string {
	parts := strings.SplitN(dn, ",", 2)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// encodePassword converts a plaintext password into the UTF-16LE quoted form
// Active Directory expects for unicodePwd.
func encodePassword(password string) string {
	units := utf16.Encode([]rune("\"" + password + "\""))
	encoded := make([]byte, 0, len(units)*2)
	for _, u := range units {
		encoded = append(encoded, byte(u), byte(u>>8))
	}
	return string(encoded)
}
