package effector

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"
)

var (
	ErrMissingArgument = errors.New("missing required argument")
	ErrUnknownArgument = errors.New("unknown argument")
)

// Args are the prepared arguments of one invocation.
type Args map[string]any

// Decode copies the arguments into the struct pointed to by out, matching
// fields by their json tag and converting weakly typed values.
func (a Args) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}
	if err := dec.Decode(map[string]any(a)); err != nil {
		return fmt.Errorf("decode args: %w", err)
	}
	return nil
}

// PrepareArgs validates raw against the effector's parameters, filling in
// defaults for optional parameters that were not supplied.
func PrepareArgs(eff *Effector, raw map[string]any) (Args, error) {
	known := make(map[string]bool, len(eff.Parameters))
	args := make(Args, len(eff.Parameters))
	for _, p := range eff.Parameters {
		known[p.Name] = true
		if v, ok := raw[p.Name]; ok {
			args[p.Name] = v
			continue
		}
		if p.Required {
			return nil, fmt.Errorf("%s: %w %q", eff.Name, ErrMissingArgument, p.Name)
		}
		if p.Default != nil {
			args[p.Name] = p.Default
		}
	}

	var unknown []string
	for name := range raw {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%s: %w %q", eff.Name, ErrUnknownArgument, unknown)
	}
	return args, nil
}
