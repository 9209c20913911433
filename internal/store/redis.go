package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/erazemk/oddaja/internal/model"
)

// Redis keeps each record in a hash at oddaja:{kind}:{id} and orders them by
// creation time in a sorted set at oddaja:{kind}:created.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps a connected client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// OpenRedis connects to addr and checks the connection.
func OpenRedis(ctx context.Context, addr string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, unavailable("connecting to redis", err)
	}
	return NewRedis(client), nil
}

// casScript sets field/value pairs only while the hash's status equals ARGV[1].
var casScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'status') ~= ARGV[1] then
  return 0
end
for i = 2, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
return 1
`)

// updateScript sets field/value pairs only when the hash exists.
var updateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
for i = 1, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
return 1
`)

func itemKey(kind model.Kind, id string) string {
	return fmt.Sprintf("oddaja:%s:%s", kind, id)
}

func createdKey(kind model.Kind) string {
	return fmt.Sprintf("oddaja:%s:created", kind)
}

func redisTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// hashFields flattens a document into HSET arguments. Unset optional fields
// are left out.
func hashFields(d document) []any {
	f := []any{
		"status", d.Status,
		"created_at", redisTime(d.CreatedAt),
	}
	add := func(name, value string) {
		if value != "" {
			f = append(f, name, value)
		}
	}
	add("title", d.Title)
	add("name", d.Name)
	add("description", d.Description)
	add("price", d.Price)
	add("total_price", d.TotalPrice)
	add("discount_percent", d.DiscountPercent)
	add("photos", d.Photos)
	add("notes", d.Notes)
	if d.ListingCount != 0 {
		f = append(f, "listing_count", strconv.Itoa(d.ListingCount))
	}
	if d.DestinationReference != nil {
		f = append(f, "destination_reference", *d.DestinationReference)
	}
	if d.PublishedAt != nil {
		f = append(f, "published_at", redisTime(*d.PublishedAt))
	}
	return f
}

func documentFromHash(id string, h map[string]string) (document, error) {
	d := document{
		ID:              id,
		Title:           h["title"],
		Name:            h["name"],
		Description:     h["description"],
		Price:           h["price"],
		TotalPrice:      h["total_price"],
		DiscountPercent: h["discount_percent"],
		Photos:          h["photos"],
		Status:          h["status"],
		Notes:           h["notes"],
	}
	if v, ok := h["listing_count"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return d, fmt.Errorf("listing_count: %w", err)
		}
		d.ListingCount = n
	}
	if v, ok := h["destination_reference"]; ok {
		d.DestinationReference = &v
	}
	if v, ok := h["published_at"]; ok {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return d, fmt.Errorf("published_at: %w", err)
		}
		d.PublishedAt = &t
	}
	t, err := time.Parse(time.RFC3339Nano, h["created_at"])
	if err != nil {
		return d, fmt.Errorf("created_at: %w", err)
	}
	d.CreatedAt = t
	return d, nil
}

// patchArgs renders a patch as field/value script arguments.
func patchArgs(p model.Patch) ([]any, error) {
	cols, err := patchColumns(p)
	if err != nil {
		return nil, err
	}
	args := make([]any, 0, 2*len(cols))
	for _, c := range cols {
		v := c.value
		if t, ok := v.(time.Time); ok {
			v = redisTime(t)
		}
		args = append(args, c.name, v)
	}
	return args, nil
}

// FetchQueueCandidates returns records with a status in statuses, oldest first.
func (s *Redis) FetchQueueCandidates(ctx context.Context, kind model.Kind, statuses []model.Status) ([]model.Record, error) {
	if _, err := collection(kind); err != nil {
		return nil, err
	}

	ids, err := s.client.ZRange(ctx, createdKey(kind), 0, -1).Result()
	if err != nil {
		return nil, unavailable("listing "+string(kind), err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringStringMapCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, itemKey(kind, id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, unavailable("listing "+string(kind), err)
	}

	want := make(map[string]bool, len(statuses))
	for _, st := range statuses {
		want[string(st)] = true
	}

	var records []model.Record
	for i, cmd := range cmds {
		h := cmd.Val()
		if len(h) == 0 || !want[h["status"]] {
			continue
		}
		d, err := documentFromHash(ids[i], h)
		if err != nil {
			return nil, fmt.Errorf("decoding %s %s: %w", kind, ids[i], err)
		}
		records = append(records, d.record(kind))
	}

	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
	return records, nil
}

// ConditionalUpdate applies patch only while the hash still has the expected status.
func (s *Redis) ConditionalUpdate(ctx context.Context, kind model.Kind, id string, expected model.Status, patch model.Patch) (int64, error) {
	if _, err := collection(kind); err != nil {
		return 0, err
	}
	args, err := patchArgs(patch)
	if err != nil {
		return 0, err
	}

	n, err := casScript.Run(ctx, s.client, []string{itemKey(kind, id)},
		append([]any{string(expected)}, args...)...).Int64()
	if err != nil {
		return 0, unavailable("updating "+string(kind), err)
	}
	return n, nil
}

// Update applies patch regardless of the record's status.
func (s *Redis) Update(ctx context.Context, kind model.Kind, id string, patch model.Patch) error {
	if _, err := collection(kind); err != nil {
		return err
	}
	args, err := patchArgs(patch)
	if err != nil {
		return err
	}

	n, err := updateScript.Run(ctx, s.client, []string{itemKey(kind, id)}, args...).Int64()
	if err != nil {
		return unavailable("updating "+string(kind), err)
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// Get returns a record by kind and id.
func (s *Redis) Get(ctx context.Context, kind model.Kind, id string) (*model.Record, error) {
	if _, err := collection(kind); err != nil {
		return nil, err
	}
	h, err := s.client.HGetAll(ctx, itemKey(kind, id)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable("getting "+string(kind), err)
	}
	if len(h) == 0 {
		return nil, model.ErrNotFound
	}
	d, err := documentFromHash(id, h)
	if err != nil {
		return nil, fmt.Errorf("decoding %s %s: %w", kind, id, err)
	}
	rec := d.record(kind)
	return &rec, nil
}

// Insert stores a new listing or bundle.
func (s *Redis) Insert(ctx context.Context, rec model.Record) (model.Record, error) {
	rec, err := prepareInsert(rec)
	if err != nil {
		return rec, err
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, itemKey(rec.Kind, rec.ID), hashFields(toDocument(rec))...)
	pipe.ZAdd(ctx, createdKey(rec.Kind), &redis.Z{
		Score:  float64(rec.CreatedAt.UnixMilli()),
		Member: rec.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return rec, unavailable("inserting "+string(rec.Kind), err)
	}
	return rec, nil
}

// Close closes the client.
func (s *Redis) Close() error {
	return s.client.Close()
}
