// Package models contains the GORM persistence models for sync logs,
// pipeline checkpoints and catalog entities. Domain types stay free of ORM
// tags; each model converts to and from its domain counterpart.
package models
