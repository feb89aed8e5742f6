package constants

type contextKey string

const (
	PoolKey          contextKey = "pool"
	LoggerKey        contextKey = "logger"
	ParamsKey        contextKey = "params"
	TenantContextKey contextKey = "tenant_context"
	UnitOfWorkKey    contextKey = "unit_of_work"
)
