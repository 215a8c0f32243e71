package carriers

import (
	_ "embed"
	"encoding/json"
	"os"
	"strings"

	"github.com/BearBump/BoxTrack/internal/models"
	"github.com/pkg/errors"
)

//go:embed carriers.json
var defaultCarriers []byte

// Registry is built once at startup and never mutated afterwards,
// so it is safe for concurrent reads without locking.
type Registry struct {
	list   []models.Carrier
	byCode map[string]models.Carrier
}

// Load reads the registry from path, or from the embedded table when path is empty.
func Load(path string) (*Registry, error) {
	data := defaultCarriers
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read carriers file")
		}
		data = b
	}

	var list []models.Carrier
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, errors.Wrap(err, "decode carriers")
	}
	return New(list)
}

func New(list []models.Carrier) (*Registry, error) {
	r := &Registry{
		list:   make([]models.Carrier, 0, len(list)),
		byCode: make(map[string]models.Carrier, len(list)),
	}
	for _, c := range list {
		if !isOwnerPrefix(c.Code) {
			return nil, errors.Errorf("invalid carrier code %q", c.Code)
		}
		if _, dup := r.byCode[c.Code]; dup {
			return nil, errors.Errorf("duplicate carrier code %q", c.Code)
		}
		r.byCode[c.Code] = c
		r.list = append(r.list, c)
	}
	return r, nil
}

func (r *Registry) List() []models.Carrier {
	out := make([]models.Carrier, len(r.list))
	copy(out, r.list)
	return out
}

func (r *Registry) Lookup(code string) (models.Carrier, bool) {
	c, ok := r.byCode[code]
	return c, ok
}

// Guess infers the carrier from the owner prefix of a container number.
// Returns "" when the prefix is unknown.
func (r *Registry) Guess(container string) string {
	s := strings.ToUpper(strings.TrimSpace(container))
	if len(s) < 4 {
		return ""
	}
	if c, ok := r.byCode[s[:4]]; ok {
		return c.Code
	}
	return ""
}

// Resolve returns the explicit carrier code when one is given (it is not
// checked against the registry), otherwise the guess from the container.
func (r *Registry) Resolve(explicit, container string) string {
	if code := strings.ToUpper(strings.TrimSpace(explicit)); code != "" {
		return code
	}
	return r.Guess(container)
}

func isOwnerPrefix(code string) bool {
	if len(code) != 4 {
		return false
	}
	for i := 0; i < 4; i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}
