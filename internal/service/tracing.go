package service

import (
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ServiceTracerName is the name used for the instance service tracer
const ServiceTracerName = "github.com/leadengine/instance-sync/service"

// Custom attribute keys for business context
const (
	AttrOperation = attribute.Key("instance.operation")
	AttrBrokerID  = attribute.Key("broker.id")
	AttrQueued    = attribute.Key("disconnect.queued")
)

// peerService tags spans that call out to the broker
var peerService = semconv.PeerService("whatsapp-broker")
