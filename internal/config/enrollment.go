package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnrollmentSettings are operator-tunable values read by the enrollment
// workflow on every call. They reload without a restart.
type EnrollmentSettings struct {
	Currency               string `mapstructure:"currency"`
	OrderDescriptionPrefix string `mapstructure:"orderDescriptionPrefix"`
	NotificationsEnabled   bool   `mapstructure:"notificationsEnabled"`
	NotificationSubject    string `mapstructure:"notificationSubject"`
	NotificationBody       string `mapstructure:"notificationBody"`
}

func DefaultEnrollmentSettings() EnrollmentSettings {
	return EnrollmentSettings{
		Currency:               "USD",
		OrderDescriptionPrefix: "Enrollment: ",
		NotificationsEnabled:   true,
		NotificationSubject:    "Course Enrollment Confirmation",
		NotificationBody:       "Hi {{.Name}},\n\nYou've successfully enrolled in {{.CourseTitle}}. Enjoy learning!",
	}
}

type EnrollmentSettingsHolder struct {
	current atomic.Value // holds EnrollmentSettings
}

// NewStaticEnrollmentSettings returns a holder that never reloads.
func NewStaticEnrollmentSettings(settings EnrollmentSettings) *EnrollmentSettingsHolder {
	holder := &EnrollmentSettingsHolder{}
	holder.current.Store(settings)
	return holder
}

func NewEnrollmentSettingsHolder(log *zap.Logger) (*EnrollmentSettingsHolder, error) {
	v := viper.New()

	v.SetConfigName("enrollment")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/lms")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	return loadEnrollmentSettings(v, log)
}

func loadEnrollmentSettings(v *viper.Viper, log *zap.Logger) (*EnrollmentSettingsHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.enrollment")

	v.SetEnvPrefix("LMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultEnrollmentSettings()
	v.SetDefault("enrollment.currency", defaults.Currency)
	v.SetDefault("enrollment.orderDescriptionPrefix", defaults.OrderDescriptionPrefix)
	v.SetDefault("enrollment.notificationsEnabled", defaults.NotificationsEnabled)
	v.SetDefault("enrollment.notificationSubject", defaults.NotificationSubject)
	v.SetDefault("enrollment.notificationBody", defaults.NotificationBody)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	cfg, err := decodeEnrollmentSettings(v)
	if err != nil {
		return nil, err
	}

	holder := &EnrollmentSettingsHolder{}
	holder.current.Store(cfg)

	if !fileLoaded {
		log.Info("enrollment config file not found, using defaults")
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeEnrollmentSettings(v)
		if err != nil {
			log.Warn("enrollment config reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("enrollment config reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

func decodeEnrollmentSettings(v *viper.Viper) (EnrollmentSettings, error) {
	var cfg EnrollmentSettings
	if err := v.UnmarshalKey("enrollment", &cfg); err != nil {
		return EnrollmentSettings{}, err
	}
	cfg.Currency = strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if err := validateEnrollmentSettings(cfg); err != nil {
		return EnrollmentSettings{}, err
	}
	return cfg, nil
}

func (h *EnrollmentSettingsHolder) Get() EnrollmentSettings {
	if h == nil {
		return DefaultEnrollmentSettings()
	}
	return h.current.Load().(EnrollmentSettings)
}

func validateEnrollmentSettings(cfg EnrollmentSettings) error {
	if len(cfg.Currency) != 3 {
		return errors.New("enrollment.currency must be an ISO 4217 code")
	}
	if strings.TrimSpace(cfg.NotificationSubject) == "" {
		return errors.New("enrollment.notificationSubject cannot be empty")
	}
	if strings.TrimSpace(cfg.NotificationBody) == "" {
		return errors.New("enrollment.notificationBody cannot be empty")
	}
	return nil
}
