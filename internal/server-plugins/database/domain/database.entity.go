package database

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrDatabaseNotFound    = errors.New("database not found")
	ErrInvalidDatabaseType = errors.New("invalid database type")
)

type Type string

const (
	TypePostgreSQL Type = "postgresql"
	TypeMySQL      Type = "mysql"
	TypeMongoDB    Type = "mongodb"
	TypeRedis      Type = "redis"
)

// ServicePlugin returns the Dokku plugin namespace that manages the type.
func (t Type) ServicePlugin() (string, error) {
	switch t {
	case TypePostgreSQL:
		return "postgres", nil
	case TypeMySQL:
		return "mysql", nil
	case TypeMongoDB:
		return "mongo", nil
	case TypeRedis:
		return "redis", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrInvalidDatabaseType, t)
	}
}

// ParseType accepts a type name or the Dokku plugin that manages it.
func ParseType(value string) (Type, error) {
	switch value {
	case "postgresql", "postgres":
		return TypePostgreSQL, nil
	case "mysql":
		return TypeMySQL, nil
	case "mongodb", "mongo":
		return TypeMongoDB, nil
	case "redis":
		return TypeRedis, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrInvalidDatabaseType, value)
	}
}

// ExistsCommand returns the Dokku command that checks a service of this type.
func (t Type) ExistsCommand() (string, error) {
	plugin, err := t.ServicePlugin()
	if err != nil {
		return "", err
	}
	return plugin + ":exists", nil
}

// LinkCommand returns the Dokku command that links a service of this type.
func (t Type) LinkCommand() (string, error) {
	plugin, err := t.ServicePlugin()
	if err != nil {
		return "", err
	}
	return plugin + ":link", nil
}

// Database is a Dokku service instance and the applications linked to it.
type Database struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Type   Type     `json:"type"`
	AppIDs []string `json:"app_ids,omitempty"`
}

func (d *Database) IsLinkedTo(appID string) bool {
	return slices.Contains(d.AppIDs, appID)
}
