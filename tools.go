//go:build tools

package ignite

import (
	_ "golang.org/x/tools/cmd/stringer"
)
