package registry

import (
	"fmt"
	"sort"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// DecodeArgs converts task arguments into target, a pointer to a struct
// with `cty` tags. Each argument is converted to the type of its field
// first, so a number may feed a string field and a tuple a slice field.
// Arguments without a matching field are rejected, and fields that are not
// pointers, maps or slices are required.
func DecodeArgs(args map[string]cty.Value, target any) error {
	ty, err := gocty.ImpliedType(target)
	if err != nil {
		return fmt.Errorf("input type: %w", err)
	}
	if !ty.IsObjectType() {
		return fmt.Errorf("input type must be a struct, got %s", ty.FriendlyName())
	}
	attrTypes := ty.AttributeTypes()

	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)

	vals := make(map[string]cty.Value, len(args))
	for _, name := range names {
		want, ok := attrTypes[name]
		if !ok {
			return fmt.Errorf("unsupported argument %q", name)
		}
		v, err := convert.Convert(args[name], want)
		if err != nil {
			return fmt.Errorf("argument %q: %w", name, err)
		}
		vals[name] = v
	}

	if err := gocty.FromCtyValue(cty.ObjectVal(vals), target); err != nil {
		return fmt.Errorf("arguments: %w", err)
	}
	return nil
}

// ToGo converts a cty value into plain Go values for logging or encoding.
func ToGo(val cty.Value) (any, error) {
	if !val.IsKnown() || val.IsNull() {
		return nil, nil
	}
	ty := val.Type()
	if ty.IsPrimitiveType() {
		switch ty {
		case cty.String:
			return val.AsString(), nil
		case cty.Number:
			f, _ := val.AsBigFloat().Float64()
			return f, nil
		case cty.Bool:
			return val.True(), nil
		default:
			return nil, fmt.Errorf("unsupported primitive type: %s", ty.FriendlyName())
		}
	}
	if ty.IsObjectType() || ty.IsMapType() {
		out := make(map[string]any)
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			converted, err := ToGo(v)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = converted
		}
		return out, nil
	}
	if ty.IsTupleType() || ty.IsListType() || ty.IsSetType() {
		out := []any{}
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			converted, err := ToGo(v)
			if err != nil {
				return nil, err
			}
			out = append(out, converted)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported cty.Type for conversion: %s", ty.FriendlyName())
}
