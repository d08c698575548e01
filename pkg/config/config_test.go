package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAPI_Defaults(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/blockmail")
	t.Setenv("RMQ_URL", "")

	cfg, err := LoadAPI(LoadOptions{})
	require.NoError(t, err, "the API does not talk to the broker")
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 30*time.Minute, cfg.EditorSessionTTL)
}

func TestLoadAPI_MissingRequired(t *testing.T) {
	t.Setenv("DB_DSN", "")
	t.Setenv("RMQ_URL", "amqp://x")

	_, err := LoadAPI(LoadOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DSN")
}

func TestLoadAPI_EnvFile(t *testing.T) {
	dir := t.TempDir()
	content := "DB_DSN=postgres://file/db\nPORT=9090\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.env"), []byte(content), 0o600))
	t.Setenv("PORT", "")
	t.Setenv("DB_DSN", "")
	t.Setenv("RMQ_URL", "")

	cfg, err := LoadAPI(LoadOptions{EnvFile: "test", Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, "postgres://file/db", cfg.DBDSN)
	assert.Equal(t, "9090", cfg.Port)
}

func TestLoadWorker(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/blockmail")
	t.Setenv("RMQ_URL", "amqp://localhost")
	t.Setenv("SCHEDULER_INTERVAL", "5s")

	cfg, err := LoadWorker(LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.SchedulerInterval)
	assert.Equal(t, 10, cfg.ClaimBatch)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, "log", cfg.MailerMode)
	assert.Equal(t, 587, cfg.SMTP.Port)
}

func TestLoadWorker_SMTPRequiresHost(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/blockmail")
	t.Setenv("RMQ_URL", "amqp://localhost")
	t.Setenv("MAILER", "smtp")
	t.Setenv("SMTP_HOST", "")

	_, err := LoadWorker(LoadOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SMTP_HOST")
}

func TestLoadWorker_UnknownMailer(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/blockmail")
	t.Setenv("RMQ_URL", "amqp://localhost")
	t.Setenv("MAILER", "carrier-pigeon")

	_, err := LoadWorker(LoadOptions{})
	assert.Error(t, err)
}
