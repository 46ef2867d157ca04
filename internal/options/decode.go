package options

import (
	"github.com/go-viper/mapstructure/v2"
)

// Decode copies resolved options into a struct tagged with `option:"name"`.
func Decode(resolved map[string]any, out any) error {
	return DecodeTagged(resolved, out, "option")
}

// DecodeTagged is Decode with a custom struct tag, for adapter configs that
// are also loaded through koanf.
func DecodeTagged(resolved any, out any, tag string) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          tag,
		WeaklyTypedInput: true,
		Result:           out,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(resolved)
}
