// Package validation checks configuration structs.
//
// Struct tag validation covers per-field rules:
//
//	type Config struct {
//	    AuthServerURL string `mapstructure:"auth_server_url" validate:"required,absurl"`
//	    TTLSeconds    int    `mapstructure:"ttl_seconds" validate:"gte=0"`
//	}
//	err := validation.Validate(cfg)
//
// Rules that span fields use the collecting Validator:
//
//	v := validation.New()
//	v.Merge("", validation.Validate(cfg))
//	v.Custom(cfg.ClientSecret != "" || !cfg.UseServiceAccount, "client_secret", "is required for the service account")
//	err := v.Validate()
//
// Both report INVALID_INPUT with Details["fields"] listing each failure by
// its config key.
package validation
