package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Стандартные ключи атрибутов
const (
	// Сеть
	AttrNetworkVersion   = "network.version"
	AttrNetworkLocations = "network.locations"
	AttrNetworkRoutes    = "network.routes"

	// Поиск путей
	AttrOrigin      = "paths.origin"
	AttrDestination = "paths.destination"
	AttrPathsFound  = "paths.found"

	// Кризис
	AttrCrisisKind   = "crisis.kind"
	AttrCrisisTarget = "crisis.target"
	AttrRoutesLost   = "crisis.routes_removed"

	// Советник
	AttrAdvisor     = "advisor.provider"
	AttrAdvisorGen  = "advisor.generation"
	AttrAdvisorHits = "advisor.cache_hit"

	// Сессия
	AttrSessionID = "session.id"
	AttrCommand   = "session.command"
)

// NetworkAttributes возвращает атрибуты состояния сети
func NetworkAttributes(version uint64, locations, routes int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64(AttrNetworkVersion, int64(version)),
		attribute.Int(AttrNetworkLocations, locations),
		attribute.Int(AttrNetworkRoutes, routes),
	}
}

// PathAttributes возвращает атрибуты поиска путей
func PathAttributes(origin, destination string, found int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrOrigin, origin),
		attribute.String(AttrDestination, destination),
		attribute.Int(AttrPathsFound, found),
	}
}

// DestroyAttributes возвращает атрибуты разрушения
func DestroyAttributes(kind, target string, routesRemoved int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrCrisisKind, kind),
		attribute.String(AttrCrisisTarget, target),
		attribute.Int(AttrRoutesLost, routesRemoved),
	}
}

// AdvisorAttributes возвращает атрибуты вызова советника
func AdvisorAttributes(provider string, generation uint64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrAdvisor, provider),
		attribute.Int64(AttrAdvisorGen, int64(generation)),
	}
}

// CacheAttribute отмечает попадание в кэш ответов советника
func CacheAttribute(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrAdvisorHits, hit)
}
