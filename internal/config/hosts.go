package config

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/avolkov/hostrun/internal/config/configstore"
)

var validate = validator.New()

func init() {
	_ = validate.RegisterValidation("hostid", validateHostName)
}

var hostNameRe = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

func validateHostName(fl validator.FieldLevel) bool {
	return hostNameRe.MatchString(fl.Field().String())
}

// Host describes one target the agent can run jobs on.
type Host struct {
	Name        string `yaml:"name" json:"name" validate:"required,hostid"`
	Addr        string `yaml:"addr" json:"addr" validate:"required"`
	Transport   string `yaml:"transport" json:"transport" validate:"oneof=ssh local"`
	ConnOptions string `yaml:"connOptions" json:"connOptions"` // user=, key=, port=, ...
}

// Inventory is the set of configured hosts.
type Inventory struct {
	Hosts []Host `yaml:"hosts" json:"hosts" validate:"required,min=1,dive"`
}

// LoadInventory reads and validates the inventory from the given store.
func LoadInventory(store configstore.ConfigStore) (*Inventory, error) {
	var inv Inventory
	if err := store.Load(&inv); err != nil {
		return nil, err
	}
	if err := inv.Validate(); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (inv *Inventory) Validate() error {
	if err := validate.Struct(inv); err != nil {
		return fmt.Errorf("inventory validation failed: %w", err)
	}
	seen := make(map[string]bool, len(inv.Hosts))
	for _, h := range inv.Hosts {
		if seen[h.Name] {
			return fmt.Errorf("duplicate host name %q", h.Name)
		}
		seen[h.Name] = true
	}
	return nil
}

// Lookup finds a host by name.
func (inv *Inventory) Lookup(name string) (*Host, bool) {
	for i := range inv.Hosts {
		if inv.Hosts[i].Name == name {
			return &inv.Hosts[i], true
		}
	}
	return nil, false
}
