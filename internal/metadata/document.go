// Package metadata renders the service metadata document (EDMX/CSDL) from entity types.
package metadata

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/nlstn/go-odata-sql/internal/edm"
	"github.com/nlstn/go-odata-sql/internal/response"
)

// Version is the OData version declared by the documents.
const Version = "4.0"

// ContainerName is the name of the single entity container.
const ContainerName = "Container"

// Document is the rendered metadata of a service.
type Document struct {
	XML  []byte
	JSON []byte
	// ETag is a weak validator derived from the XML document.
	ETag string
}

// Build renders both document forms. Entity types are emitted in the given order, and
// each type is exposed through an entity set of the same name.
func Build(namespace string, types []*edm.EntityType) (*Document, error) {
	xmlDoc := BuildXML(namespace, types)
	jsonDoc, err := BuildJSON(namespace, types)
	if err != nil {
		return nil, err
	}
	return &Document{
		XML:  []byte(xmlDoc),
		JSON: jsonDoc,
		ETag: ETag([]byte(xmlDoc)),
	}, nil
}

// ETag returns the weak entity tag of a document body.
func ETag(body []byte) string {
	return fmt.Sprintf(`W/"%016x"`, xxhash.Sum64(body))
}

var attrEscaper = strings.NewReplacer(`&`, "&amp;", `<`, "&lt;", `>`, "&gt;", `"`, "&quot;", `'`, "&apos;")

func attr(s string) string {
	return attrEscaper.Replace(s)
}

func qualified(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "." + name
}

// BuildXML renders the EDMX document.
func BuildXML(namespace string, types []*edm.EntityType) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<edmx:Edmx xmlns:edmx="http://docs.oasis-open.org/odata/ns/edmx" Version="%s">
  <edmx:DataServices>
    <Schema xmlns="http://docs.oasis-open.org/odata/ns/edm" Namespace="%s">
`, Version, attr(namespace)))

	for _, et := range types {
		builder.WriteString(buildEntityType(et))
	}
	builder.WriteString(buildEntityContainer(namespace, types))

	builder.WriteString(`    </Schema>
  </edmx:DataServices>
</edmx:Edmx>
`)
	return builder.String()
}

func buildEntityType(et *edm.EntityType) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf(`      <EntityType Name="%s">
        <Key>
`, attr(et.Name)))
	for _, key := range et.Key {
		builder.WriteString(fmt.Sprintf(`          <PropertyRef Name="%s" />
`, attr(key)))
	}
	builder.WriteString(`        </Key>
`)

	for _, prop := range et.Properties {
		attrs := fmt.Sprintf(`Name="%s" Type="%s" Nullable="%t"`, attr(prop.Name), prop.Type, prop.Nullable)
		if prop.Facets.Precision != nil {
			attrs += fmt.Sprintf(` Precision="%d"`, *prop.Facets.Precision)
		}
		if prop.Facets.Scale != nil {
			attrs += fmt.Sprintf(` Scale="%d"`, *prop.Facets.Scale)
		}
		if prop.Facets.MaxLength != nil {
			attrs += fmt.Sprintf(` MaxLength="%d"`, *prop.Facets.MaxLength)
		}
		builder.WriteString(fmt.Sprintf(`        <Property %s />
`, attrs))
	}

	builder.WriteString(`      </EntityType>
`)
	return builder.String()
}

func buildEntityContainer(namespace string, types []*edm.EntityType) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf(`      <EntityContainer Name="%s">
`, ContainerName))
	for _, et := range types {
		builder.WriteString(fmt.Sprintf(`        <EntitySet Name="%s" EntityType="%s" />
`, attr(et.Name), attr(qualified(namespace, et.Name))))
	}
	builder.WriteString(`      </EntityContainer>
`)
	return builder.String()
}

// BuildJSON renders the CSDL JSON document. Members keep declaration order.
func BuildJSON(namespace string, types []*edm.EntityType) ([]byte, error) {
	schema := response.NewOrderedMap()
	for _, et := range types {
		schema.Set(et.Name, buildJSONEntityType(et))
	}

	container := response.NewOrderedMap()
	container.Set("$Kind", "EntityContainer")
	for _, et := range types {
		set := response.NewOrderedMap()
		set.Set("$Collection", true)
		set.Set("$Type", qualified(namespace, et.Name))
		container.Set(et.Name, set)
	}
	schema.Set(ContainerName, container)

	csdl := response.NewOrderedMap()
	csdl.Set("$Version", Version)
	csdl.Set("$EntityContainer", qualified(namespace, ContainerName))
	csdl.Set(namespace, schema)

	return json.MarshalIndent(csdl, "", "  ")
}

func buildJSONEntityType(et *edm.EntityType) *response.OrderedMap {
	entityType := response.NewOrderedMap()
	entityType.Set("$Kind", "EntityType")
	entityType.Set("$Key", append([]string(nil), et.Key...))

	for _, prop := range et.Properties {
		propDef := response.NewOrderedMap()
		propDef.Set("$Type", prop.Type)
		// $Nullable defaults to true in CSDL JSON.
		if !prop.Nullable {
			propDef.Set("$Nullable", false)
		}
		if prop.Facets.Precision != nil {
			propDef.Set("$Precision", *prop.Facets.Precision)
		}
		if prop.Facets.Scale != nil {
			propDef.Set("$Scale", *prop.Facets.Scale)
		}
		if prop.Facets.MaxLength != nil {
			propDef.Set("$MaxLength", *prop.Facets.MaxLength)
		}
		entityType.Set(prop.Name, propDef)
	}
	return entityType
}
