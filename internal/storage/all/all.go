// Package all links every storage backend into the binary. Import it for
// side effects from main packages:
//
//	_ "retailetl/internal/storage/all"
package all

import (
	_ "retailetl/internal/storage/mssql"
	_ "retailetl/internal/storage/mysql"
	_ "retailetl/internal/storage/postgres"
	_ "retailetl/internal/storage/sqlite"
)
