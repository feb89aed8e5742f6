package configuration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadEnv_FallsBackToGoModRoot(t *testing.T) {
	tmp := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(tmp, "go.mod"), []byte("module example.com/test\n\ngo 1.22\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tmp, ".env.local"), []byte("TENANTKIT_TEST_ENV_LOAD=ok\n"), 0o644))

	sub := filepath.Join(tmp, "pkg", "uow")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	t.Chdir(sub)
	t.Setenv("TENANTKIT_TEST_ENV_LOAD", "")
	require.NoError(t, os.Unsetenv("TENANTKIT_TEST_ENV_LOAD"))

	n, err := LoadEnv([]string{".env", ".env.local"})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "ok", os.Getenv("TENANTKIT_TEST_ENV_LOAD"))
}

func TestValidateRLS(t *testing.T) {
	cases := []struct {
		name    string
		enforce string
		user    string
		setting string
		wantErr bool
		want    string
	}{
		{name: "default", enforce: "", user: "postgres", setting: "app.current_tenant", want: RLSDisabled},
		{name: "enforce as app user", enforce: " Enforce ", user: "tenantkit_app", setting: "app.current_tenant", want: RLSEnforce},
		{name: "enforce as superuser", enforce: "enforce", user: "postgres", setting: "app.current_tenant", wantErr: true},
		{name: "unknown mode", enforce: "strict", user: "app", setting: "app.current_tenant", wantErr: true},
		{name: "bad setting", enforce: "disabled", user: "app", setting: "tenant", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := &Configuration{
				Database: DatabaseOptions{User: tc.user},
				RLS:      RLSOptions{Enforce: tc.enforce, Setting: tc.setting},
			}
			err := c.validateRLS()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, c.RLS.Enforce)
		})
	}
}

func TestLoad_ParsesSections(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LOG_PATH", filepath.Join(t.TempDir(), "app.log"))
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("OUTBOX_RELAY_SINK", "Kafka")
	t.Setenv("DURABLE_EVENTS", "true")
	t.Setenv("PORT", "4000")

	c, err := Load()
	require.NoError(t, err)
	t.Cleanup(c.Unload)

	require.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	require.Equal(t, "kafka", c.Outbox.RelaySink)
	require.True(t, c.DurableEvents)
	require.Equal(t, "localhost:4000", c.SocketAddress)
	require.Equal(t, "app.current_tenant", c.RLS.Setting)
	require.NotNil(t, c.Logger())
}

func TestLoad_RejectsUnknownSink(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LOG_PATH", filepath.Join(t.TempDir(), "app.log"))
	t.Setenv("OUTBOX_RELAY_SINK", "sqs")

	_, err := Load()
	require.ErrorContains(t, err, "OUTBOX_RELAY_SINK")
}

func TestRateLimitOptions_Validate(t *testing.T) {
	require.NoError(t, (&RateLimitOptions{TenantRPS: 10, Storage: "redis"}).Validate())
	require.Error(t, (&RateLimitOptions{TenantRPS: -1, Storage: "memory"}).Validate())
	require.Error(t, (&RateLimitOptions{TenantRPS: 10, Storage: "disk"}).Validate())
}
