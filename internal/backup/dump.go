package backup

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// buildDump renders a self-contained SQL dump of the whole store. The
// output restores with the target database's plain client (psql or the
// sqlite3 shell).
func buildDump(db *gorm.DB) (string, error) {
	dbType := db.Dialector.Name()

	var dump strings.Builder
	dump.WriteString("-- Server-Monitor-System store backup\n")
	dump.WriteString(fmt.Sprintf("-- Generated at: %s\n", time.Now().Format("2006-01-02 15:04:05")))
	dump.WriteString(fmt.Sprintf("-- Database type: %s\n\n", dbType))

	tableNames, err := listTables(db, dbType)
	if err != nil {
		return "", err
	}

	for _, tableName := range tableNames {
		dump.WriteString(fmt.Sprintf("-- Table: %s\n", tableName))

		ddl := generateTableDDL(db, dbType, tableName)
		if ddl != "" {
			dump.WriteString(fmt.Sprintf("DROP TABLE IF EXISTS %s;\n", quoteIdentifier(tableName)))
			dump.WriteString(ddl)
			dump.WriteString("\n\n")
		}

		inserts, err := generateTableInserts(db, tableName)
		if err != nil {
			return "", errors.Wrapf(err, "dump rows of %s", tableName)
		}
		if inserts != "" {
			dump.WriteString(inserts)
			dump.WriteString("\n")
		}
	}
	return dump.String(), nil
}

func listTables(db *gorm.DB, dbType string) ([]string, error) {
	var tableNames []string
	switch dbType {
	case "postgres":
		err := db.Raw(`
			SELECT table_name
			FROM information_schema.tables
			WHERE table_schema = 'public'
			ORDER BY table_name
		`).Scan(&tableNames).Error
		return tableNames, err
	case "sqlite":
		err := db.Raw(`
			SELECT name
			FROM sqlite_master
			WHERE type='table' AND name NOT LIKE 'sqlite_%'
			ORDER BY name
		`).Scan(&tableNames).Error
		return tableNames, err
	default:
		return nil, errors.Errorf("unsupported database type for backup: %s", dbType)
	}
}

func quoteIdentifier(identifier string) string {
	return fmt.Sprintf("\"%s\"", identifier)
}

func generateTableDDL(db *gorm.DB, dbType, tableName string) string {
	switch dbType {
	case "sqlite":
		var ddl string
		db.Raw(`SELECT sql FROM sqlite_master WHERE type='table' AND name = ?`, tableName).Scan(&ddl)
		if ddl != "" {
			return ddl + ";"
		}
	case "postgres":
		return buildPostgresDDL(db, tableName)
	}
	return ""
}

func buildPostgresDDL(db *gorm.DB, tableName string) string {
	type columnDef struct {
		ColumnName    string
		DataType      string
		CharMaxLen    *int
		IsNullable    string
		ColumnDefault *string
	}

	var columns []columnDef
	db.Raw(`
		SELECT column_name, data_type, character_maximum_length AS char_max_len, is_nullable, column_default
		FROM information_schema.columns
		WHERE table_name = ? AND table_schema = 'public'
		ORDER BY ordinal_position
	`, tableName).Scan(&columns)

	if len(columns) == 0 {
		return ""
	}

	var defs []string
	for _, col := range columns {
		def := quoteIdentifier(col.ColumnName) + " " + col.DataType
		if col.CharMaxLen != nil {
			def += fmt.Sprintf("(%d)", *col.CharMaxLen)
		}
		if col.ColumnDefault != nil {
			def += " DEFAULT " + *col.ColumnDefault
		}
		if col.IsNullable == "NO" {
			def += " NOT NULL"
		}
		defs = append(defs, "    "+def)
	}

	var pkColumns []string
	db.Raw(`
		SELECT a.attname
		FROM pg_index i
		JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
		WHERE i.indrelid = ?::regclass AND i.indisprimary
	`, tableName).Scan(&pkColumns)
	if len(pkColumns) > 0 {
		quoted := make([]string, len(pkColumns))
		for i, c := range pkColumns {
			quoted[i] = quoteIdentifier(c)
		}
		defs = append(defs, "    PRIMARY KEY ("+strings.Join(quoted, ", ")+")")
	}

	return fmt.Sprintf("CREATE TABLE %s (\n%s\n);", quoteIdentifier(tableName), strings.Join(defs, ",\n"))
}

func generateTableInserts(db *gorm.DB, tableName string) (string, error) {
	rows, err := db.Raw("SELECT * FROM " + quoteIdentifier(tableName)).Rows()
	if err != nil {
		return "", err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return "", err
	}

	quotedCols := make([]string, len(columns))
	for i, col := range columns {
		quotedCols[i] = quoteIdentifier(col)
	}
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ",
		quoteIdentifier(tableName), strings.Join(quotedCols, ", "))

	var out strings.Builder
	values := make([]interface{}, len(columns))
	scanTargets := make([]interface{}, len(columns))
	for i := range values {
		scanTargets[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(scanTargets...); err != nil {
			return "", err
		}
		literals := make([]string, len(values))
		for i, v := range values {
			literals[i] = sqlLiteral(v)
		}
		out.WriteString(prefix)
		out.WriteString("(" + strings.Join(literals, ", ") + ");\n")
	}
	return out.String(), rows.Err()
}

func sqlLiteral(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case int64:
		return fmt.Sprintf("%d", val)
	case float64:
		return fmt.Sprintf("%g", val)
	case time.Time:
		return "'" + val.UTC().Format("2006-01-02 15:04:05.999999") + "'"
	case []byte:
		return "'" + strings.ReplaceAll(string(val), "'", "''") + "'"
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	case sql.RawBytes:
		return "'" + strings.ReplaceAll(string(val), "'", "''") + "'"
	default:
		return "'" + strings.ReplaceAll(fmt.Sprintf("%v", val), "'", "''") + "'"
	}
}
