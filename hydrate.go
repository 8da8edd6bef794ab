package hydrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jinzhu/gorm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/coursehero/hydrate/v2/internal/sqlparse"
	"github.com/coursehero/hydrate/v2/metrics"
)

//ErrUnsupportedSQL is returned when the FROM clause of a query can not be read as a chain of equi-joins.
var ErrUnsupportedSQL = sqlparse.ErrUnsupported

const tracerName = "github.com/coursehero/hydrate/v2"

//Query is used to define a query to hydrate data using a single query. The query's FROM and JOIN clauses decide
//which entities are loaded: every joined table is matched to a relation of the root entity, or of an entity joined
//before it, and its columns are selected under the alias used in the query (or the table name if there is none).
//Each entity stores unique items based on primary key values returned from the query and is attached to its parent
//through the relation its join realised.
//
//The query may start with FROM, or with a SELECT whose select list will be replaced. Everything from FROM onwards,
//placeholders and args included, is sent to the database unchanged.
type Query struct {
	db *gorm.DB

	query string
	args  []interface{}

	root  *RelationNode
	model interface{}
	paths []string

	logger  *slog.Logger
	metrics *metrics.Recorder
}

//NewQuery will create a query with a given query and sql args
func NewQuery(db *gorm.DB, query string, args ...interface{}) Query {
	return Query{
		query: query,
		args:  args,
		db:    db,
	}
}

//Root sets the relation tree describing the query's root entity.
func (r Query) Root(node *RelationNode) Query {
	r.root = node
	r.model = nil
	return r
}

//Model derives the relation tree from a gorm model, following only the relationships named by paths if any are
//given. See LoadModel.
func (r Query) Model(model interface{}, paths ...string) Query {
	r.model = model
	r.paths = paths
	r.root = nil
	return r
}

//WithLogger sets the logger used for debug output, slog.Default() otherwise.
func (r Query) WithLogger(logger *slog.Logger) Query {
	r.logger = logger
	return r
}

//WithMetrics records the query's outcome, rows and records with m.
func (r Query) WithMetrics(m *metrics.Recorder) Query {
	r.metrics = m
	return r
}

//Plan is the statement a Query executes and the layout of the rows it returns.
type Plan struct {
	SQL  string
	Args []interface{}
	//Aliases maps every table of the query to its node, root first
	Aliases    []AliasNode
	Tags       []ColumnTag
	Projection []string
}

//Plan resolves the query's joins against the relation tree and builds the statement to execute. No database access
//happens here besides reading gorm model metadata.
func (r Query) Plan() (Plan, error) {
	root, err := r.relationTree()
	if err != nil {
		return Plan{}, err
	}

	parsed, err := sqlparse.Parse(r.query)
	if err != nil {
		return Plan{}, fmt.Errorf("hydrate: %w", err)
	}

	aliases, err := ResolveJoins(root, joinChain(parsed))
	if err != nil {
		return Plan{}, err
	}

	cp, err := BuildColumnPlan(aliases)
	if err != nil {
		return Plan{}, err
	}

	from, err := sqlparse.SplitFrom(r.query)
	if err != nil {
		return Plan{}, fmt.Errorf("hydrate: %w", err)
	}

	sql, args, err := sq.Select(cp.Projection...).
		Suffix(from, r.args...).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return Plan{}, fmt.Errorf("hydrate: build select: %w", err)
	}

	return Plan{
		SQL:        sql,
		Args:       args,
		Aliases:    aliases,
		Tags:       cp.Tags,
		Projection: cp.Projection,
	}, nil
}

func (r Query) relationTree() (*RelationNode, error) {
	switch {
	case r.root != nil:
		return r.root, nil
	case r.model != nil:
		return LoadModel(r.db, r.model, r.paths...)
	}
	return nil, &MetadataError{Msg: "query has no root entity, set one with Root or Model"}
}

//Records runs the query and returns the hydrated root records in the order the database returned them. Rows are
//hydrated while they are read; a cancelled ctx stops reading and nothing is returned.
func (r Query) Records(ctx context.Context) (ret []*Record, err error) {
	if r.db == nil {
		return nil, errors.New("hydrate: query has no database")
	}

	ctx, span := startSpan(ctx, "hydrate.Query.Records")
	defer span.End()

	var h *Hydrator
	start := time.Now()
	defer func() {
		var stats Stats
		if h != nil {
			stats = h.Stats()
		}
		status := metrics.StatusOK
		if err != nil {
			status = metrics.StatusError
		}
		span.SetAttributes(attribute.Int("hydrate.rows", stats.Rows), attribute.Int("hydrate.records", stats.Records))
		recordSpanError(span, err)
		r.metrics.ObserveQuery(status, stats.Rows, stats.Records, time.Since(start))
	}()

	plan, err := r.Plan()
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("hydrate.root", plan.Aliases[0].Node.EntityType),
		attribute.Int("hydrate.aliases", len(plan.Aliases)),
		attribute.Int("hydrate.columns", len(plan.Tags)),
	)
	log := r.log()
	log.DebugContext(ctx, "hydrate plan built",
		slog.String("root", plan.Aliases[0].Node.EntityType),
		slog.Int("columns", len(plan.Tags)),
		slog.String("sql", plan.SQL),
	)

	h, err = NewHydrator(plan.Tags)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := r.db.Raw(plan.SQL, plan.Args...).Rows()
	if err != nil {
		return nil, fmt.Errorf("hydrate: query: %w", err)
	}
	defer rows.Close()

	values := make([]interface{}, len(plan.Tags))
	scans := make([]interface{}, len(plan.Tags))
	for i := range values {
		scans[i] = &values[i]
	}

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := rows.Scan(scans...); err != nil {
			return nil, fmt.Errorf("hydrate: scan: %w", err)
		}
		if err := h.Add(values); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hydrate: read rows: %w", err)
	}

	ret = h.Result()
	stats := h.Stats()
	log.DebugContext(ctx, "hydrate query finished",
		slog.Int("rows", stats.Rows),
		slog.Int("records", stats.Records),
		slog.Int("roots", len(ret)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return ret, nil
}

//Run will run the query and put the root records in output, which must be a pointer to a value that can be set.
//If a slice is provided it will fill with all results. If a single item is passed the first item will be returned.
//However no limiting will be done to the query.
func (r Query) Run(ctx context.Context, output interface{}) error {
	if err := checkOutput(output); err != nil {
		return err
	}
	records, err := r.Records(ctx)
	if err != nil {
		return err
	}
	return Decode(records, output)
}

func (r Query) log() *slog.Logger {
	if r.logger != nil {
		return r.logger
	}
	return slog.Default()
}

//MultiQuery runs independent Queries concurrently. Each query hydrates its own graph: records are never shared
//between queries, even when they load the same rows.
type MultiQuery []Query

//Records runs all queries and returns the root records of query i at index i. The first failing query cancels the
//others and its error is returned.
func (m MultiQuery) Records(ctx context.Context) ([][]*Record, error) {
	ret := make([][]*Record, len(m))
	g, ctx := errgroup.WithContext(ctx)
	for i, q := range m {
		g.Go(func() error {
			records, err := q.Records(ctx)
			if err != nil {
				return fmt.Errorf("hydrate: query %d: %w", i, err)
			}
			ret[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ret, nil
}

//Run will run all queries and decode the results of query i into output i. Outputs may be nil to skip a query's
//results and may be fewer than the queries.
func (m MultiQuery) Run(ctx context.Context, output ...interface{}) error {
	if len(output) > len(m) {
		return fmt.Errorf("hydrate: %d outputs for %d queries", len(output), len(m))
	}
	for _, o := range output {
		if o == nil {
			continue
		}
		if err := checkOutput(o); err != nil {
			return err
		}
	}

	results, err := m.Records(ctx)
	if err != nil {
		return err
	}
	for i, o := range output {
		if o == nil {
			continue
		}
		if err := Decode(results[i], o); err != nil {
			return fmt.Errorf("hydrate: query %d: %w", i, err)
		}
	}
	return nil
}

func joinChain(c sqlparse.Chain) JoinChain {
	ret := JoinChain{
		Root:  TableRef{Schema: c.Root.Schema, Name: c.Root.Name, Alias: c.Root.Alias},
		Joins: make([]Join, 0, len(c.Joins)),
	}
	for _, j := range c.Joins {
		ret.Joins = append(ret.Joins, Join{
			Table: TableRef{Schema: j.Table.Schema, Name: j.Table.Name, Alias: j.Table.Alias},
			Left:  Operand{Alias: j.Left.Table, Column: j.Left.Column},
			Right: Operand{Alias: j.Right.Table, Column: j.Right.Column},
		})
	}
	return ret
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
