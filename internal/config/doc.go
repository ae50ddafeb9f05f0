// Package config loads the tgproxy configuration file.
//
// Files are JSON, or YAML when the name ends in .yaml/.yml. Both are decoded
// strictly: unknown keys and trailing data are errors. Manager.Watch reloads
// the file on change and publishes only configs that pass validation.
package config
