// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package services

import (
	"reflect"

	log "github.com/ChainSafe/log15"
)

// Service must be implemented by all long-running node services
type Service interface {
	Start() error
	Stop() error
}

// ServiceRegistry manages the node's services. Services start in
// registration order and stop in reverse order.
type ServiceRegistry struct {
	services     map[reflect.Type]Service
	serviceTypes []reflect.Type
	logger       log.Logger
}

// NewServiceRegistry creates an empty registry
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{
		services: make(map[reflect.Type]Service),
		logger:   log.New("pkg", "services"),
	}
}

// RegisterService stores a new service in the registry. Registering a
// second service of the same type is ignored with a warning.
func (s *ServiceRegistry) RegisterService(service Service) {
	kind := reflect.TypeOf(service)
	if _, exists := s.services[kind]; exists {
		s.logger.Warn("service already registered", "type", kind)
		return
	}

	s.services[kind] = service
	s.serviceTypes = append(s.serviceTypes, kind)
}

// StartAll starts all registered services in registration order
func (s *ServiceRegistry) StartAll() {
	s.logger.Info("starting services", "count", len(s.serviceTypes))
	for _, typ := range s.serviceTypes {
		s.logger.Debug("starting service", "type", typ)
		if err := s.services[typ].Start(); err != nil {
			s.logger.Error("cannot start service", "type", typ, "error", err)
		}
	}
}

// StopAll stops all registered services in reverse registration order
func (s *ServiceRegistry) StopAll() {
	for i := len(s.serviceTypes) - 1; i >= 0; i-- {
		typ := s.serviceTypes[i]
		s.logger.Debug("stopping service", "type", typ)
		if err := s.services[typ].Stop(); err != nil {
			s.logger.Error("error stopping service", "type", typ, "error", err)
		}
	}
	s.logger.Info("all services stopped")
}

// Get returns the registered service matching the type of the given
// pointer, or nil if none is registered
func (s *ServiceRegistry) Get(srvc interface{}) Service {
	if reflect.TypeOf(srvc).Kind() != reflect.Ptr {
		s.logger.Warn("expected a pointer", "got", reflect.TypeOf(srvc))
		return nil
	}

	kind := reflect.ValueOf(srvc).Type()
	if registered, ok := s.services[kind]; ok {
		return registered
	}

	s.logger.Warn("unknown service type", "type", kind)
	return nil
}
