// Package confloader provides configuration loading mechanism.
//
// This package implements a configuration loader that supports multiple
// sources using koanf as the underlying library.
//
// Priority (highest to lowest):
//
//  1. Command-line flags (LoadMap)
//  2. Environment variables (VOS_ prefix)
//  3. Configuration file (YAML)
//  4. Default values (LoadStruct)
//
// Environment names are matched against the keys known from the defaults,
// so VOS_STORAGE_DATA_DIR sets storage.data_dir rather than
// storage.data.dir. The Watcher reports file changes for hot reload.
package confloader
