package atlas

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/chrissnell/designflood/pkg/curve"
	"github.com/chrissnell/designflood/pkg/migrate"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// MigrationProvider returns the dataset schema migrations.
func MigrationProvider() *migrate.FSProvider {
	return migrate.NewFSProvider(migrations, "migrations", "dataset_migrations")
}

// SQLiteStore keeps a dataset in a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// OpenSQLite opens (and creates if needed) a dataset database.
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	m := migrate.NewMigrator(db, MigrationProvider(), nil)
	if err := m.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create dataset schema: %w", err)
	}
	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save replaces the stored dataset with f in one transaction. f is validated
// first so an invalid dataset never reaches the database.
func (s *SQLiteStore) Save(ctx context.Context, f File) error {
	if _, err := NewDataset(f); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{
		"control_point_statistics", "control_points", "region_area_curves", "region_vertices",
		"regions", "runoff", "curve_points", "curves", "datasets",
	} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO datasets (name) VALUES (?)`, f.Name); err != nil {
		return fmt.Errorf("failed to insert dataset name: %w", err)
	}

	for _, c := range f.Curves {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO curves (id, below_mode, below_slope, below_intercept, above_mode, above_slope, above_intercept)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ID, string(c.Below.Mode), c.Below.Slope, c.Below.Intercept,
			string(c.Above.Mode), c.Above.Slope, c.Above.Intercept)
		if err != nil {
			return fmt.Errorf("failed to insert curve %s: %w", c.ID, err)
		}
		for i, p := range c.Points {
			if _, err := tx.ExecContext(ctx, `INSERT INTO curve_points (curve_id, seq, x, y) VALUES (?, ?, ?, ?)`,
				c.ID, i, p[0], p[1]); err != nil {
				return fmt.Errorf("failed to insert point of curve %s: %w", c.ID, err)
			}
		}
	}

	for i, r := range f.Runoff {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO runoff (seq, code, kind, curve_id, imax, k, description)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			i, string(r.Code), string(r.Kind), r.Curve, r.Imax, r.K, r.Description)
		if err != nil {
			return fmt.Errorf("failed to insert runoff %s: %w", r.Code, err)
		}
	}

	for i, r := range f.Regions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO regions (seq, code, name, runoff, mu, m_coefficient, m_exponent, m_curve)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			i, int(r.Code), r.Name, string(r.Runoff), r.Mu,
			r.Concentration.Coefficient, r.Concentration.Exponent, r.Concentration.Curve)
		if err != nil {
			return fmt.Errorf("failed to insert region %d: %w", r.Code, err)
		}
		for j, v := range r.Polygon {
			if _, err := tx.ExecContext(ctx, `INSERT INTO region_vertices (region_code, seq, lng, lat) VALUES (?, ?, ?, ?)`,
				int(r.Code), j, v[0], v[1]); err != nil {
				return fmt.Errorf("failed to insert vertex of region %d: %w", r.Code, err)
			}
		}
		for d, id := range r.AreaCurves {
			if _, err := tx.ExecContext(ctx, `INSERT INTO region_area_curves (region_code, duration, curve_id) VALUES (?, ?, ?)`,
				int(r.Code), string(d), id); err != nil {
				return fmt.Errorf("failed to insert area curve of region %d: %w", r.Code, err)
			}
		}
	}

	for i, p := range f.ControlPoints {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO control_points (id, name, lng, lat, n1, n2, n3)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			i, p.Name, p.Lng, p.Lat, p.Exponents.N1, p.Exponents.N2, p.Exponents.N3)
		if err != nil {
			return fmt.Errorf("failed to insert control point %s: %w", p.Name, err)
		}
		for d, st := range p.Statistics {
			if _, err := tx.ExecContext(ctx, `INSERT INTO control_point_statistics (point_id, duration, mean, cv) VALUES (?, ?, ?, ?)`,
				i, string(d), st.Mean, st.Cv); err != nil {
				return fmt.Errorf("failed to insert statistics of control point %s: %w", p.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit dataset: %w", err)
	}
	return nil
}

// Load reads the stored dataset and builds it.
func (s *SQLiteStore) Load(ctx context.Context) (*Dataset, error) {
	f, err := s.LoadFile(ctx)
	if err != nil {
		return nil, err
	}
	return NewDataset(*f)
}

// LoadFile reads the stored dataset without building it.
func (s *SQLiteStore) LoadFile(ctx context.Context) (*File, error) {
	f := &File{}

	if err := s.db.QueryRowContext(ctx, `SELECT name FROM datasets LIMIT 1`).Scan(&f.Name); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no dataset stored in %s", s.dbPath)
		}
		return nil, fmt.Errorf("failed to query dataset name: %w", err)
	}

	curves, err := s.loadCurves(ctx)
	if err != nil {
		return nil, err
	}
	f.Curves = curves

	if f.Runoff, err = s.loadRunoff(ctx); err != nil {
		return nil, err
	}
	if f.Regions, err = s.loadRegions(ctx); err != nil {
		return nil, err
	}
	if f.ControlPoints, err = s.loadControlPoints(ctx); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *SQLiteStore) loadCurves(ctx context.Context) ([]curve.Definition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, below_mode, below_slope, below_intercept, above_mode, above_slope, above_intercept
		FROM curves ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query curves: %w", err)
	}
	defer rows.Close()

	var defs []curve.Definition
	index := make(map[string]int)
	for rows.Next() {
		var d curve.Definition
		var below, above string
		if err := rows.Scan(&d.ID, &below, &d.Below.Slope, &d.Below.Intercept,
			&above, &d.Above.Slope, &d.Above.Intercept); err != nil {
			return nil, fmt.Errorf("failed to scan curve row: %w", err)
		}
		d.Below.Mode = curve.Extrapolation(below)
		d.Above.Mode = curve.Extrapolation(above)
		index[d.ID] = len(defs)
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read curves: %w", err)
	}

	pts, err := s.db.QueryContext(ctx, `SELECT curve_id, x, y FROM curve_points ORDER BY curve_id, seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query curve points: %w", err)
	}
	defer pts.Close()
	for pts.Next() {
		var id string
		var x, y float64
		if err := pts.Scan(&id, &x, &y); err != nil {
			return nil, fmt.Errorf("failed to scan curve point row: %w", err)
		}
		i, ok := index[id]
		if !ok {
			return nil, fmt.Errorf("curve point refers to unknown curve %s", id)
		}
		defs[i].Points = append(defs[i].Points, [2]float64{x, y})
	}
	return defs, pts.Err()
}

func (s *SQLiteStore) loadRunoff(ctx context.Context) ([]RunoffSpec, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, kind, curve_id, imax, k, description FROM runoff ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runoff: %w", err)
	}
	defer rows.Close()

	var specs []RunoffSpec
	for rows.Next() {
		var r RunoffSpec
		var code, kind string
		if err := rows.Scan(&code, &kind, &r.Curve, &r.Imax, &r.K, &r.Description); err != nil {
			return nil, fmt.Errorf("failed to scan runoff row: %w", err)
		}
		r.Code, r.Kind = RunoffCode(code), RunoffKind(kind)
		specs = append(specs, r)
	}
	return specs, rows.Err()
}

func (s *SQLiteStore) loadRegions(ctx context.Context) ([]RegionSpec, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, name, runoff, mu, m_coefficient, m_exponent, m_curve FROM regions ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query regions: %w", err)
	}
	defer rows.Close()

	var specs []RegionSpec
	index := make(map[RegionCode]int)
	for rows.Next() {
		var r RegionSpec
		var code int
		var runoff string
		if err := rows.Scan(&code, &r.Name, &runoff, &r.Mu,
			&r.Concentration.Coefficient, &r.Concentration.Exponent, &r.Concentration.Curve); err != nil {
			return nil, fmt.Errorf("failed to scan region row: %w", err)
		}
		r.Code, r.Runoff = RegionCode(code), RunoffCode(runoff)
		r.AreaCurves = make(map[Duration]string, len(Durations))
		index[r.Code] = len(specs)
		specs = append(specs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read regions: %w", err)
	}

	vertices, err := s.db.QueryContext(ctx, `SELECT region_code, lng, lat FROM region_vertices ORDER BY region_code, seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query region vertices: %w", err)
	}
	defer vertices.Close()
	for vertices.Next() {
		var code int
		var lng, lat float64
		if err := vertices.Scan(&code, &lng, &lat); err != nil {
			return nil, fmt.Errorf("failed to scan region vertex row: %w", err)
		}
		i, ok := index[RegionCode(code)]
		if !ok {
			return nil, fmt.Errorf("vertex refers to unknown region %d", code)
		}
		specs[i].Polygon = append(specs[i].Polygon, [2]float64{lng, lat})
	}
	if err := vertices.Err(); err != nil {
		return nil, fmt.Errorf("failed to read region vertices: %w", err)
	}

	areaCurves, err := s.db.QueryContext(ctx, `SELECT region_code, duration, curve_id FROM region_area_curves`)
	if err != nil {
		return nil, fmt.Errorf("failed to query region area curves: %w", err)
	}
	defer areaCurves.Close()
	for areaCurves.Next() {
		var code int
		var duration, id string
		if err := areaCurves.Scan(&code, &duration, &id); err != nil {
			return nil, fmt.Errorf("failed to scan region area curve row: %w", err)
		}
		i, ok := index[RegionCode(code)]
		if !ok {
			return nil, fmt.Errorf("area curve refers to unknown region %d", code)
		}
		specs[i].AreaCurves[Duration(duration)] = id
	}
	return specs, areaCurves.Err()
}

func (s *SQLiteStore) loadControlPoints(ctx context.Context) ([]ControlPoint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, lng, lat, n1, n2, n3 FROM control_points ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query control points: %w", err)
	}
	defer rows.Close()

	var points []ControlPoint
	index := make(map[int]int)
	for rows.Next() {
		var id int
		var p ControlPoint
		if err := rows.Scan(&id, &p.Name, &p.Lng, &p.Lat, &p.Exponents.N1, &p.Exponents.N2, &p.Exponents.N3); err != nil {
			return nil, fmt.Errorf("failed to scan control point row: %w", err)
		}
		p.Statistics = make(map[Duration]Statistics, len(Durations))
		index[id] = len(points)
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read control points: %w", err)
	}

	stats, err := s.db.QueryContext(ctx, `SELECT point_id, duration, mean, cv FROM control_point_statistics`)
	if err != nil {
		return nil, fmt.Errorf("failed to query control point statistics: %w", err)
	}
	defer stats.Close()
	for stats.Next() {
		var id int
		var duration string
		var st Statistics
		if err := stats.Scan(&id, &duration, &st.Mean, &st.Cv); err != nil {
			return nil, fmt.Errorf("failed to scan control point statistics row: %w", err)
		}
		i, ok := index[id]
		if !ok {
			return nil, fmt.Errorf("statistics refer to unknown control point %d", id)
		}
		points[i].Statistics[Duration(duration)] = st
	}
	return points, stats.Err()
}

// Open loads a dataset from the given backend, "yaml" or "sqlite".
func Open(ctx context.Context, backend, path string) (*Dataset, error) {
	switch backend {
	case "", "yaml":
		return LoadYAML(path)
	case "sqlite":
		store, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return store.Load(ctx)
	}
	return nil, fmt.Errorf("unknown dataset backend %q", backend)
}
