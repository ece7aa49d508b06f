// Package config loads service configuration from a YAML file, an optional
// .env file and prefixed environment variables using Viper.
//
//	var cfg Config
//	if err := config.LoadConfig("realmd", &cfg); err != nil {
//	    return err
//	}
//
// Config structs declare keys with mapstructure tags and may implement
// ApplyDefaults and Validate, which LoadConfig calls after unmarshalling.
package config
