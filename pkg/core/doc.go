// Package core defines the shared language of the semantique query engine.
//
// This package contains:
//   - References (ConceptRef, LayerRef, ResultRef, SelfRef, CollectionRef)
//   - Recipes and processing chains (Recipe, Chain, VerbCall)
//   - Values flowing through chains (Array, Collection)
//   - Collaborator interfaces (MappingIndex, LayoutIndex, DataCube, VerbEngine)
//   - The resolution error taxonomy
//
// The Golden Rule: pkg/core imports ONLY stdlib and yaml.v3 (for its codecs).
// All other packages depend on core, not the reverse.
package core
