package common

import "fmt"

var (
	// Collection keys
	collectionPrefix  string = "catalog"
	collectionRecords string = "catalog:%s:records" // path
	collectionLock    string = "catalog:%s:lock:%s" // path, id

	// Gateway keys
	gatewayPrefix   string = "gateway"
	gatewayInitLock string = "gateway:init:%s:lock" // name
)

var Keys = &redisKeys{}

type redisKeys struct{}

// Collection keys
func (rk *redisKeys) CollectionPrefix() string {
	return collectionPrefix
}

func (rk *redisKeys) CollectionRecords(path string) string {
	return fmt.Sprintf(collectionRecords, path)
}

func (rk *redisKeys) CollectionLock(path, id string) string {
	return fmt.Sprintf(collectionLock, path, id)
}

// Gateway keys
func (rk *redisKeys) GatewayPrefix() string {
	return gatewayPrefix
}

func (rk *redisKeys) GatewayInitLock(name string) string {
	return fmt.Sprintf(gatewayInitLock, name)
}
