package teamd

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/team-access/team/pkg/storage"
)

// Config is the daemon's deployment wiring: where the tables, stream,
// identity center instance and notification channels live. Runtime policy
// (durations, approval requirements, channel toggles) lives in the Settings
// record, not here.
type Config struct {
	Region string

	RequestsTable    string
	SessionsTable    string
	SettingsTable    string
	ApproversTable   string
	EligibilityTable string
	ExecutionsTable  string
	CheckpointsTable string

	// RequestsStreamARN is the change feed of the requests table.
	RequestsStreamARN string

	// InstanceARN and IdentityStoreID identify the IAM Identity Center
	// instance assignments are managed on.
	InstanceARN     string
	IdentityStoreID string

	NotificationTopicARN string
	DeadLetterQueueURL   string
}

func (c Config) TableNames() storage.TableNames {
	return storage.TableNames{
		Requests:    c.RequestsTable,
		Sessions:    c.SessionsTable,
		Settings:    c.SettingsTable,
		Approvers:   c.ApproversTable,
		Eligibility: c.EligibilityTable,
		Checkpoints: c.CheckpointsTable,
	}
}

// LoadConfig reads the TOML config file at path.
func LoadConfig(path string) (Config, error) {
	var c Config
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading config %s", path)
	}
	if err := toml.Unmarshal(b, &c); err != nil {
		return Config{}, errors.Wrapf(err, "parsing config %s", path)
	}
	if c.RequestsTable == "" {
		return Config{}, errors.New("config: RequestsTable is required")
	}
	if c.InstanceARN == "" {
		return Config{}, errors.New("config: InstanceARN is required")
	}
	return c, nil
}
