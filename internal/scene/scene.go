// Package scene is an in-memory stand-in for the content-creation host.
// It backs the hostsim command and the end-to-end tests with the same
// command surface the real host addon exposes, minus the actual 3D engine.
package scene

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Vec3 is a location, rotation or scale triple.
type Vec3 [3]float64

// Object is one scene member. Material is empty until set_material runs
// against it.
type Object struct {
	Name       string      `json:"name"`
	Type       string      `json:"type"`
	Location   Vec3        `json:"location"`
	Rotation   Vec3        `json:"rotation"`
	Scale      Vec3        `json:"scale"`
	Material   string      `json:"material,omitempty"`
	Color      *[4]float64 `json:"color,omitempty"`
	Collection string      `json:"collection,omitempty"`
	SourceRef  string      `json:"source_ref,omitempty"`
}

var objectTypes = map[string]bool{
	"CUBE": true, "SPHERE": true, "CYLINDER": true, "PLANE": true,
	"CONE": true, "TORUS": true, "EMPTY": true, "CAMERA": true,
	"LIGHT": true, "MESH": true,
}

// Scene holds the mutable state. All access goes through the mutex; the
// host server may run handlers from several connections.
type Scene struct {
	log *zap.Logger

	mu          sync.Mutex
	name        string
	objects     map[string]*Object
	collections map[string][]string
	savedTo     string
	executedLog []string
}

func New(log *zap.Logger) *Scene {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scene{
		log:         log,
		name:        "Scene",
		objects:     make(map[string]*Object),
		collections: map[string][]string{"Collection": nil},
	}
}

// uniqueName appends numeric suffixes the way Blender does until the name
// is free. Caller holds s.mu.
func (s *Scene) uniqueName(base string) string {
	if base == "" {
		base = "Object"
	}
	if _, taken := s.objects[base]; !taken {
		return base
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s.%03d", base, i)
		if _, taken := s.objects[candidate]; !taken {
			return candidate
		}
	}
}

// CreateObject adds an object of the given type, deduplicating the name.
// Scale defaults to unit when zero.
func (s *Scene) CreateObject(objType, name string, loc, rot, scale Vec3) (*Object, error) {
	objType = strings.ToUpper(strings.TrimSpace(objType))
	if !objectTypes[objType] {
		return nil, fmt.Errorf("unknown object type %q", objType)
	}
	if scale == (Vec3{}) {
		scale = Vec3{1, 1, 1}
	}
	if name == "" {
		name = objType[:1] + strings.ToLower(objType[1:])
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	obj := &Object{
		Name:       s.uniqueName(name),
		Type:       objType,
		Location:   loc,
		Rotation:   rot,
		Scale:      scale,
		Collection: "Collection",
	}
	s.objects[obj.Name] = obj
	s.collections["Collection"] = append(s.collections["Collection"], obj.Name)
	s.log.Debug("object created", zap.String("name", obj.Name), zap.String("type", objType))
	return snapshot(obj), nil
}

// Object returns a copy of the named object.
func (s *Scene) Object(name string) (*Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[name]
	if !ok {
		return nil, fmt.Errorf("object %q not found", name)
	}
	return snapshot(obj), nil
}

// SetTransform overwrites whichever components are non-nil.
func (s *Scene) SetTransform(name string, loc, rot, scale *Vec3) (*Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[name]
	if !ok {
		return nil, fmt.Errorf("object %q not found", name)
	}
	if loc != nil {
		obj.Location = *loc
	}
	if rot != nil {
		obj.Rotation = *rot
	}
	if scale != nil {
		obj.Scale = *scale
	}
	return snapshot(obj), nil
}

func (s *Scene) DeleteObject(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[name]
	if !ok {
		return fmt.Errorf("object %q not found", name)
	}
	delete(s.objects, name)
	s.collections[obj.Collection] = removeString(s.collections[obj.Collection], name)
	return nil
}

// SetMaterial assigns a material, creating a default name when none was
// given. Color is RGBA in 0..1.
func (s *Scene) SetMaterial(objectName, materialName string, color *[4]float64) (*Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[objectName]
	if !ok {
		return nil, fmt.Errorf("object %q not found", objectName)
	}
	if materialName == "" {
		materialName = objectName + "_material"
	}
	obj.Material = materialName
	if color != nil {
		for _, c := range color {
			if c < 0 || c > 1 {
				return nil, fmt.Errorf("color component %v out of range [0,1]", c)
			}
		}
		c := *color
		obj.Color = &c
	}
	return snapshot(obj), nil
}

func (s *Scene) CreateCollection(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("collection name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.collections[name]; exists {
		return fmt.Errorf("collection %q already exists", name)
	}
	s.collections[name] = nil
	return nil
}

func (s *Scene) MoveToCollection(objectName, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[objectName]
	if !ok {
		return fmt.Errorf("object %q not found", objectName)
	}
	if _, ok := s.collections[collection]; !ok {
		return fmt.Errorf("collection %q not found", collection)
	}
	s.collections[obj.Collection] = removeString(s.collections[obj.Collection], objectName)
	obj.Collection = collection
	s.collections[collection] = append(s.collections[collection], objectName)
	return nil
}

// ImportAsset registers a downloaded model as a mesh object.
func (s *Scene) ImportAsset(name, sourceRef string) (*Object, error) {
	if sourceRef == "" {
		return nil, fmt.Errorf("source reference is required")
	}
	obj, err := s.CreateObject("MESH", name, Vec3{}, Vec3{}, Vec3{1, 1, 1})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.objects[obj.Name].SourceRef = sourceRef
	obj.SourceRef = sourceRef
	s.mu.Unlock()
	return obj, nil
}

// Info summarizes the scene the way the host's get_scene_info does:
// object listing capped at 10 entries to keep payloads small.
func (s *Scene) Info() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.objects))
	for name := range s.objects {
		names = append(names, name)
	}
	sort.Strings(names)

	listed := names
	if len(listed) > 10 {
		listed = listed[:10]
	}
	objs := make([]map[string]any, 0, len(listed))
	for _, name := range listed {
		o := s.objects[name]
		objs = append(objs, map[string]any{
			"name":     o.Name,
			"type":     o.Type,
			"location": o.Location,
		})
	}

	collections := make([]string, 0, len(s.collections))
	for name := range s.collections {
		collections = append(collections, name)
	}
	sort.Strings(collections)

	return map[string]any{
		"name":         s.name,
		"object_count": len(s.objects),
		"objects":      objs,
		"collections":  collections,
	}
}

// RecordExecution notes code that passed the gate. The simulator does not
// run it; it reports back how much it would have run.
func (s *Scene) RecordExecution(code string) map[string]any {
	s.mu.Lock()
	s.executedLog = append(s.executedLog, code)
	n := len(s.executedLog)
	s.mu.Unlock()
	lines := strings.Count(code, "\n") + 1
	return map[string]any{
		"executed":   true,
		"lines":      lines,
		"executions": n,
	}
}

// SaveBlend records the save target. Empty path keeps the previous one or
// falls back to the default.
func (s *Scene) SaveBlend(path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if path != "" {
		s.savedTo = path
	}
	if s.savedTo == "" {
		s.savedTo = "untitled.blend"
	}
	return s.savedTo
}

func snapshot(o *Object) *Object {
	c := *o
	if o.Color != nil {
		col := *o.Color
		c.Color = &col
	}
	return &c
}

func removeString(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
