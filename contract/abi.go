// Package contract models contract interfaces as a closed set of descriptor
// shapes, resolves methods by name and encodes calls for submission through a
// wallet provider.
package contract

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/vitwit/w3session/types"
)

// Entry is one raw descriptor as it appears in contract metadata JSON.
type Entry struct {
	Type            string  `json:"type"`
	Name            string  `json:"name,omitempty"`
	Inputs          []Param `json:"inputs,omitempty"`
	Outputs         []Param `json:"outputs,omitempty"`
	StateMutability string  `json:"stateMutability,omitempty"`
	Anonymous       bool    `json:"anonymous,omitempty"`
	Constant        bool    `json:"constant,omitempty"`
	Payable         bool    `json:"payable,omitempty"`
}

// Param describes one input or output of a descriptor.
type Param struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Components []Param `json:"components,omitempty"`
	Indexed    bool    `json:"indexed,omitempty"`
}

// ABI is the validated, ordered descriptor set for one contract. Methods keep
// their source order so name lookup is first-match-wins.
type ABI struct {
	Methods     []abi.Method
	Events      []abi.Event
	Constructor *abi.Method
}

// ParseABI validates raw descriptor JSON into the supported variant set.
// Unknown descriptor kinds are rejected; fallback and receive entries are
// tolerated but never resolvable by name.
func ParseABI(data []byte) (ABI, error) {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return ABI{}, &types.SessionError{
			Code:    types.ErrInvalidABI,
			Message: fmt.Sprintf("failed to parse contract ABI: %v", err),
		}
	}
	return FromEntries(entries)
}

// MustParseABI is ParseABI for package-level constants.
func MustParseABI(data string) ABI {
	parsed, err := ParseABI([]byte(data))
	if err != nil {
		panic(err)
	}
	return parsed
}

// FromEntries validates an already-decoded descriptor list.
func FromEntries(entries []Entry) (ABI, error) {
	var out ABI
	for i, entry := range entries {
		switch entry.Type {
		case "function", "":
			// Very old compiler output omits "type" for functions.
			if entry.Name == "" {
				return ABI{}, invalidABI(fmt.Sprintf("entry %d: function requires a name", i))
			}
			inputs, err := buildArguments(entry.Inputs)
			if err != nil {
				return ABI{}, invalidABI(fmt.Sprintf("entry %d (%s): %v", i, entry.Name, err))
			}
			outputs, err := buildArguments(entry.Outputs)
			if err != nil {
				return ABI{}, invalidABI(fmt.Sprintf("entry %d (%s): %v", i, entry.Name, err))
			}
			method := abi.NewMethod(entry.Name, entry.Name, abi.Function, entry.StateMutability, entry.Constant, entry.Payable, inputs, outputs)
			out.Methods = append(out.Methods, method)

		case "constructor":
			inputs, err := buildArguments(entry.Inputs)
			if err != nil {
				return ABI{}, invalidABI(fmt.Sprintf("entry %d (constructor): %v", i, err))
			}
			ctor := abi.NewMethod("", "", abi.Constructor, entry.StateMutability, entry.Constant, entry.Payable, inputs, nil)
			out.Constructor = &ctor

		case "event":
			if entry.Name == "" {
				return ABI{}, invalidABI(fmt.Sprintf("entry %d: event requires a name", i))
			}
			inputs, err := buildArguments(entry.Inputs)
			if err != nil {
				return ABI{}, invalidABI(fmt.Sprintf("entry %d (%s): %v", i, entry.Name, err))
			}
			out.Events = append(out.Events, abi.NewEvent(entry.Name, entry.Name, entry.Anonymous, inputs))

		case "fallback", "receive":
			// Nothing to resolve.

		default:
			return ABI{}, invalidABI(fmt.Sprintf("entry %d: unsupported descriptor type %q", i, entry.Type))
		}
	}
	return out, nil
}

// Method returns the first descriptor whose name matches exactly. Methods the
// session invokes are assumed unique per contract, so first match wins.
func (a ABI) Method(name string) (abi.Method, error) {
	for _, m := range a.Methods {
		if m.RawName == name {
			return m, nil
		}
	}
	return abi.Method{}, &types.SessionError{
		Code:    types.ErrMethodNotFound,
		Message: fmt.Sprintf("method %q not found in contract ABI", name),
	}
}

func buildArguments(params []Param) (abi.Arguments, error) {
	args := make(abi.Arguments, 0, len(params))
	for _, p := range params {
		typ, err := abi.NewType(p.Type, "", marshalComponents(p.Components))
		if err != nil {
			return nil, fmt.Errorf("bad parameter type %q: %v", p.Type, err)
		}
		args = append(args, abi.Argument{Name: p.Name, Type: typ, Indexed: p.Indexed})
	}
	return args, nil
}

func marshalComponents(params []Param) []abi.ArgumentMarshaling {
	if len(params) == 0 {
		return nil
	}
	out := make([]abi.ArgumentMarshaling, 0, len(params))
	for _, p := range params {
		out = append(out, abi.ArgumentMarshaling{
			Name:       p.Name,
			Type:       p.Type,
			Components: marshalComponents(p.Components),
			Indexed:    p.Indexed,
		})
	}
	return out
}

func invalidABI(msg string) *types.SessionError {
	return &types.SessionError{Code: types.ErrInvalidABI, Message: msg}
}
