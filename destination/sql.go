package destination

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	// Registers the "mysql" driver
	_ "github.com/go-sql-driver/mysql"
	// Registers the "postgres" driver
	_ "github.com/lib/pq"
)

const (
	TableName = "pngbop_results"

	connectTimeout = 5 * time.Second
)

var createTable = map[string]string{
	TypePostgres: `CREATE TABLE IF NOT EXISTS ` + TableName + ` (
	id               BIGSERIAL PRIMARY KEY,
	run_id           TEXT NOT NULL,
	line             BIGINT NOT NULL,
	path             TEXT NOT NULL,
	width            BIGINT NOT NULL,
	height           BIGINT NOT NULL,
	bit_depth        SMALLINT NOT NULL,
	color_type       TEXT NOT NULL,
	interlaced       BOOLEAN NOT NULL,
	palette_entries  INTEGER NOT NULL,
	idat_chunks      INTEGER NOT NULL,
	compressed_bytes BIGINT NOT NULL,
	inflated_bytes   BIGINT NOT NULL,
	sample_bytes     BIGINT NOT NULL,
	sha256           TEXT NOT NULL,
	duration_us      BIGINT NOT NULL,
	error            TEXT NOT NULL,
	decoded_at       TIMESTAMPTZ NOT NULL
)`,
	TypeMySQL: `CREATE TABLE IF NOT EXISTS ` + TableName + ` (
	id               BIGINT AUTO_INCREMENT PRIMARY KEY,
	run_id           VARCHAR(36) NOT NULL,
	line             BIGINT NOT NULL,
	path             TEXT NOT NULL,
	width            INT UNSIGNED NOT NULL,
	height           INT UNSIGNED NOT NULL,
	bit_depth        TINYINT UNSIGNED NOT NULL,
	color_type       VARCHAR(32) NOT NULL,
	interlaced       BOOLEAN NOT NULL,
	palette_entries  INT NOT NULL,
	idat_chunks      INT NOT NULL,
	compressed_bytes BIGINT NOT NULL,
	inflated_bytes   BIGINT NOT NULL,
	sample_bytes     BIGINT NOT NULL,
	sha256           CHAR(64) NOT NULL,
	duration_us      BIGINT NOT NULL,
	error            TEXT NOT NULL,
	decoded_at       DATETIME(6) NOT NULL
)`,
}

const insertResult = `INSERT INTO ` + TableName + ` (
	run_id, line, path, width, height, bit_depth, color_type, interlaced,
	palette_entries, idat_chunks, compressed_bytes, inflated_bytes,
	sample_bytes, sha256, duration_us, error, decoded_at
) VALUES (
	:run_id, :line, :path, :width, :height, :bit_depth, :color_type, :interlaced,
	:palette_entries, :idat_chunks, :compressed_bytes, :inflated_bytes,
	:sample_bytes, :sha256, :duration_us, :error, :decoded_at
)`

// SQL inserts one row per result into pngbop_results.
type SQL struct {
	db  *sqlx.DB
	log *logrus.Entry
}

// NewSQL connects using driver "postgres" or "mysql".
func NewSQL(ctx context.Context, driver, dsn string, create bool) (*SQL, error) {
	schema, ok := createTable[driver]
	if !ok {
		return nil, errors.Errorf("unsupported sql driver '%s'", driver)
	}

	connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	db, err := sqlx.ConnectContext(connCtx, driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "error connecting to %s", driver)
	}

	if create {
		if _, err := db.ExecContext(ctx, schema); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "error creating table %s", TableName)
		}
	}

	return &SQL{
		db:  db,
		log: logrus.WithFields(logrus.Fields{"pkg": "destination.sql", "driver": driver}),
	}, nil
}

func (d *SQL) Write(ctx context.Context, r *Result) error {
	if _, err := d.db.NamedExecContext(ctx, insertResult, r); err != nil {
		return errors.Wrapf(err, "error inserting result for line %d", r.Line)
	}

	d.log.Debugf("inserted result for line %d", r.Line)

	return nil
}

func (d *SQL) Close() error {
	return d.db.Close()
}
