package wechat

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Credential — кэшируемые учетные данные шлюза: значение и срок годности.
// Хранится в redis, а не в глобальной переменной процесса, поэтому переживает
// рестарты и делится между инстансами
type Credential struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// refreshMargin — запас до истечения, чтобы не отдать токен на самой границе срока
const refreshMargin = time.Minute

// CredentialCache — узкий аксессор к кэшу учетных данных; передаётся явной
// зависимостью тем, кто ходит во внешний шлюз.
type CredentialCache struct {
	rdb *redis.Client
}

func NewCredentialCache(rdb *redis.Client) *CredentialCache {
	return &CredentialCache{rdb: rdb}
}

// Get возвращает живую запись кэша либо nil, если её нет или срок почти вышел
func (c *CredentialCache) Get(ctx context.Context, key string) (*Credential, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, err
	}
	if time.Until(cred.ExpiresAt) < refreshMargin {
		return nil, nil
	}
	return &cred, nil
}

// Put сохраняет запись; TTL ключа совпадает со сроком годности значения
func (c *CredentialCache) Put(ctx context.Context, key string, cred *Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	ttl := time.Until(cred.ExpiresAt)
	if ttl <= 0 {
		return errors.New("credential already expired")
	}
	return c.rdb.Set(ctx, key, data, ttl).Err()
}

// GetOrRefresh возвращает закэшированное значение либо обновляет его через
// refresh и кладёт в кэш
func (c *CredentialCache) GetOrRefresh(ctx context.Context, key string, refresh func(ctx context.Context) (*Credential, error)) (string, error) {
	cred, err := c.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if cred != nil {
		return cred.Value, nil
	}

	cred, err = refresh(ctx)
	if err != nil {
		return "", err
	}
	if err := c.Put(ctx, key, cred); err != nil {
		return "", err
	}
	return cred.Value, nil
}
