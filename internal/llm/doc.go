// Package llm defines the interface between the advisor pipeline and the
// external text-generation capability. Concrete clients live in
// sub-packages; the pipeline only ever depends on the Client interface.
package llm
