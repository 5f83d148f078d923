// Package configstore loads the two declarative Admin tables that drive
// ingestion: FileConfiguration (per-source delimiter, account, category)
// and ColumnConfiguration (per-column rename, layer names, transformation
// expression, ordinal). Both are loaded once per run and read-shared.
package configstore
