package mapping

import (
	"fmt"

	"github.com/partsync/backend/internal/domain/datasync"
	"github.com/spf13/viper"
)

// mappingFile is the layout of a mapping override file:
//
//	[[schemas]]
//	entity_type = "part"
//	key_fields = ["manufacturer_code", "normalized_part_number"]
//	derived_fields = ["normalized_part_number"]
//	  [[schemas.fields]]
//	  source = "PARTNO"
//	  target = "part_number"
//	  type = "string"
//	  required = true
//	  max_length = 30
type mappingFile struct {
	Schemas []Schema `mapstructure:"schemas"`
}

// LoadFile reads schema overrides from a TOML, YAML, or JSON file
func LoadFile(path string) ([]Schema, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, datasync.NewConfigurationError("mapping", fmt.Sprintf("cannot read mapping file %s", path), err)
	}

	var file mappingFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, datasync.NewConfigurationError("mapping", fmt.Sprintf("cannot decode mapping file %s", path), err)
	}
	return file.Schemas, nil
}

// Load builds a registry from the built-in schemas and, when path is not
// empty, the overrides in that file.
func Load(path string) (*Registry, error) {
	schemas := DefaultSchemas()
	if path != "" {
		overrides, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, overrides...)
	}
	return NewRegistry(schemas...)
}
