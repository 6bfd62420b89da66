// Package all links every built-in storage backend into the binary. Importing
// it for side effects registers the backends' factories and DDL
// bootstrappers:
//
//	import _ "dwetl/internal/storage/all"
package all

import (
	_ "dwetl/internal/storage/mssql"
	_ "dwetl/internal/storage/mysql"
	_ "dwetl/internal/storage/postgres"
	_ "dwetl/internal/storage/sqlite"
)
