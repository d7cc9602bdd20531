package config

// Backend abstracts persistent config storage behind the env overrides.
// The default is a JSON file in the XDG config directory.
type Backend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}
