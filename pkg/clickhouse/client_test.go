package clickhouse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildDSN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{
			name: "native with timeouts",
			cfg: ClientConfig{
				Host: "ch", Port: 9000, Database: "stockcast", User: "default",
				DialTimeout: 5 * time.Second, ReadTimeout: 10 * time.Second,
			},
			want: "clickhouse://default:@ch:9000/stockcast?dial_timeout=5s&read_timeout=10s",
		},
		{
			name: "http with async insert",
			cfg: ClientConfig{
				Host: "ch", Port: 8123, Database: "db", User: "u", Password: "p@ss",
				UseHTTP: true, AsyncInsert: true, WaitForAsync: true, MaxExecTime: 30 * time.Second,
			},
			want: "http://u:p%40ss@ch:8123/db?async_insert=1&max_execution_time=30&wait_for_async_insert=1",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, buildDSN(tt.cfg))
		})
	}
}

func TestNewClientRequiresHost(t *testing.T) {
	t.Parallel()

	_, err := NewClient(WithHost(""))
	assert.Error(t, err)
}
