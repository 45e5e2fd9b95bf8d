package appidentityassets

import _ "embed"

// YAML is the identity compiled into the binary; an app.yaml found on disk
// or via FULMEN_APP_IDENTITY_PATH takes precedence.
//
//go:embed app.yaml
var YAML []byte
