package vector

import (
	"context"

	"github.com/weaviate/weaviate/entities/models"
)

// SchemaClient defines the Weaviate schema operations used at startup.
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
	DeleteClass(ctx context.Context, className string) error
}

// RaceProperties are the properties every race chunk carries. Location and
// date fields use field tokenization so metadata filters match whole values.
func RaceProperties() []*models.Property {
	return []*models.Property{
		{Name: "text", DataType: []string{"text"}},
		{Name: "source", DataType: []string{"text"}, Tokenization: "field"},
		{Name: "city", DataType: []string{"text"}, Tokenization: "field"},
		{Name: "state", DataType: []string{"text"}, Tokenization: "field"},
		{Name: "month", DataType: []string{"text"}, Tokenization: "field"},
		{Name: "year", DataType: []string{"text"}, Tokenization: "field"},
		{Name: "distances", DataType: []string{"text[]"}, Tokenization: "field"},
		{Name: "start_index", DataType: []string{"text"}, Tokenization: "field"},
	}
}

// EnsureSchema creates className if it is missing and adds any race property
// an older class lacks.
func EnsureSchema(ctx context.Context, client SchemaClient, className string) error {
	exists, err := client.ClassExists(ctx, className)
	if err != nil {
		return err
	}

	properties := RaceProperties()

	if !exists {
		class := &models.Class{
			Class:       className,
			Description: "One scraped race record",
			Vectorizer:  "none",
			Properties:  properties,
		}
		return client.CreateClass(ctx, class)
	}

	class, err := client.GetClass(ctx, className)
	if err != nil {
		return err
	}

	existingProps := make(map[string]bool)
	for _, p := range class.Properties {
		existingProps[p.Name] = true
	}

	for _, p := range properties {
		if !existingProps[p.Name] {
			if err := client.AddProperty(ctx, className, p); err != nil {
				return err
			}
		}
	}

	return nil
}
