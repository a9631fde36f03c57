package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Vector is a fixed-dimension embedding stored as a JSON array of floats.
// Serializing through JSON keeps the column portable across every dialect
// database.Connect supports; similarity is computed in process.
type Vector []float32

// Value implements driver.Valuer. A nil vector stores as NULL.
func (v Vector) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal([]float32(v))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (v *Vector) Scan(value interface{}) error {
	if value == nil {
		*v = nil
		return nil
	}

	var data []byte
	switch src := value.(type) {
	case []byte:
		data = src
	case string:
		data = []byte(src)
	default:
		return fmt.Errorf("Vector: cannot scan %T", value)
	}

	if len(data) == 0 {
		*v = nil
		return nil
	}

	var out []float32
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("Vector: invalid column payload: %w", err)
	}
	*v = Vector(out)
	return nil
}

// GormDataType gives the schema parser a dialect-independent base type;
// GormDBDataType below overrides it per dialect during migration.
func (Vector) GormDataType() string {
	return "text"
}

// GormDBDataType ensures the correct data type is used for each database driver.
func (Vector) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "mysql":
		return "JSON"
	case "postgres":
		return "JSONB"
	case "sqlserver", "mssql":
		return "NVARCHAR(MAX)"
	case "sqlite":
		return "TEXT"
	}
	return "TEXT"
}

// Dim returns the vector dimensionality; zero for an absent vector.
func (v Vector) Dim() int {
	return len(v)
}
