package destination

import (
	"context"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Redis stores each result under key_prefix + path.
type Redis struct {
	client *redis.Client
	prefix string
	format string
	log    *logrus.Entry
}

func NewRedis(ctx context.Context, url, prefix, format string) (*Redis, error) {
	if _, err := handle(format); err != nil {
		return nil, err
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "error parsing redis url")
	}

	client := redis.NewClient(opts).WithContext(ctx)

	if err := client.Ping().Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "error connecting to redis")
	}

	return &Redis{
		client: client,
		prefix: prefix,
		format: format,
		log:    logrus.WithField("pkg", "destination.redis"),
	}, nil
}

// Key is the redis key a result is stored under.
func (d *Redis) Key(r *Result) string {
	return d.prefix + r.Path
}

func (d *Redis) Write(ctx context.Context, r *Result) error {
	data, err := Encode(d.format, r)
	if err != nil {
		return err
	}

	if err := d.client.WithContext(ctx).Set(d.Key(r), data, 0).Err(); err != nil {
		return errors.Wrapf(err, "error setting key for line %d", r.Line)
	}

	d.log.Debugf("set '%s'", d.Key(r))

	return nil
}

func (d *Redis) Close() error {
	return d.client.Close()
}
