package tracing

// Span names for kernel dispatch operations.
const (
	SpanKernelStart    = "kernel.start"
	SpanKernelRestart  = "kernel.restart"
	SpanKernelShutdown = "kernel.shutdown"
	SpanRegistryLookup = "registry.lookup"
	SpanRegistryMerge  = "registry.merge"
	SpanClientConnect  = "client.connect"
)

// Span attribute keys. These constants define the semantic conventions
// for span attributes across the dispatch pipeline.
const (
	// Kernel attributes
	AttrKernelID   = "kernel.id"
	AttrKernelName = "kernel.name"

	// Dispatch attributes
	AttrProvisionerKind = "provisioner.kind"
	AttrClientKind      = "client.kind"
	AttrMatch           = "registry.match"
	AttrMatchVia        = "registry.via"
	AttrMappingSource   = "mapping.source"

	// Connection attributes
	AttrConnectionFields = "connection.fields"

	// Error attributes
	AttrErrorMessage = "error.message"
	AttrErrorType    = "error.type"
)
