package conf

import (
	"bytes"
	"io"
	"reflect"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
)

// bytesReader adapts a []byte to the io.Reader viper.ReadConfig expects.
func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

// durationHookFunc lets viper unmarshal "100ms", "10s", "1h" style strings
// straight into time.Duration fields.
func durationHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch f.Kind() {
		case reflect.String:
			return time.ParseDuration(data.(string))
		default:
			return data, nil
		}
	}
}
