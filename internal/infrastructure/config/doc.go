// Package config loads and validates PlugPilot Core configuration.
//
// Configuration comes from a YAML file with environment variable overrides
// (PLUGPILOT_SECTION_KEY pattern). Defaults are applied first, then the file,
// then the environment, then the whole result is validated — an invalid
// tariff or restart time is rejected before any component sees it.
package config
