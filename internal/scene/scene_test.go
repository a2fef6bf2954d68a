package scene

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/forgebridge/forgebridge/internal/dispatch"
	"github.com/forgebridge/forgebridge/internal/wire"
)

func newTestRegistry(t *testing.T, features Features) (*Scene, *dispatch.Registry) {
	t.Helper()
	s := New(zap.NewNop())
	reg := dispatch.NewRegistry(zap.NewNop())
	s.Register(reg, features)
	return s, reg
}

func call(t *testing.T, reg *dispatch.Registry, command string, params any) json.RawMessage {
	t.Helper()
	req, err := wire.NewRequest(command, params)
	if err != nil {
		t.Fatalf("encoding params: %v", err)
	}
	res := reg.Dispatch(context.Background(), req)
	if !res.Success {
		t.Fatalf("%s failed: %s", command, res.Error)
	}
	return res.Result
}

func callErr(t *testing.T, reg *dispatch.Registry, command string, params any) string {
	t.Helper()
	req, err := wire.NewRequest(command, params)
	if err != nil {
		t.Fatalf("encoding params: %v", err)
	}
	res := reg.Dispatch(context.Background(), req)
	if res.Success {
		t.Fatalf("%s unexpectedly succeeded", command)
	}
	return res.Error
}

func TestCreateAndInspectObject(t *testing.T) {
	_, reg := newTestRegistry(t, Features{})

	out := call(t, reg, "create_object", map[string]any{
		"type":     "cube",
		"name":     "Crate",
		"location": []float64{1, 2, 3},
	})
	var obj Object
	if err := json.Unmarshal(out, &obj); err != nil {
		t.Fatalf("decoding object: %v", err)
	}
	if obj.Name != "Crate" || obj.Type != "CUBE" {
		t.Fatalf("object = %+v", obj)
	}
	if obj.Location != (Vec3{1, 2, 3}) {
		t.Fatalf("location = %v", obj.Location)
	}
	if obj.Scale != (Vec3{1, 1, 1}) {
		t.Fatalf("default scale = %v", obj.Scale)
	}

	out = call(t, reg, "get_object_info", map[string]string{"name": "Crate"})
	if !strings.Contains(string(out), `"Crate"`) {
		t.Fatalf("get_object_info = %s", out)
	}

	msg := callErr(t, reg, "get_object_info", map[string]string{"name": "Missing"})
	if !strings.Contains(msg, "not found") {
		t.Fatalf("error = %q", msg)
	}
}

func TestNameDeduplication(t *testing.T) {
	s, _ := newTestRegistry(t, Features{})
	first, err := s.CreateObject("CUBE", "Box", Vec3{}, Vec3{}, Vec3{})
	if err != nil {
		t.Fatalf("create 1: %v", err)
	}
	second, err := s.CreateObject("CUBE", "Box", Vec3{}, Vec3{}, Vec3{})
	if err != nil {
		t.Fatalf("create 2: %v", err)
	}
	if first.Name != "Box" || second.Name != "Box.001" {
		t.Fatalf("names = %q, %q", first.Name, second.Name)
	}
}

func TestTransformUpdatesOnlyGivenComponents(t *testing.T) {
	_, reg := newTestRegistry(t, Features{})
	call(t, reg, "create_object", map[string]any{"type": "SPHERE", "name": "Ball", "location": []float64{5, 5, 5}})

	out := call(t, reg, "set_object_transform", map[string]any{
		"name":  "Ball",
		"scale": []float64{2, 2, 2},
	})
	var obj Object
	json.Unmarshal(out, &obj)
	if obj.Location != (Vec3{5, 5, 5}) {
		t.Fatalf("location changed: %v", obj.Location)
	}
	if obj.Scale != (Vec3{2, 2, 2}) {
		t.Fatalf("scale = %v", obj.Scale)
	}
}

func TestMaterialAssignment(t *testing.T) {
	_, reg := newTestRegistry(t, Features{})
	call(t, reg, "create_object", map[string]any{"type": "CUBE", "name": "Crate"})

	out := call(t, reg, "set_material", map[string]any{
		"object_name": "Crate",
		"color":       []float64{0.8, 0.4, 0.2, 1},
	})
	var obj Object
	json.Unmarshal(out, &obj)
	if obj.Material != "Crate_material" {
		t.Fatalf("default material name = %q", obj.Material)
	}
	if obj.Color == nil || (*obj.Color)[0] != 0.8 {
		t.Fatalf("color = %v", obj.Color)
	}

	msg := callErr(t, reg, "set_material", map[string]any{
		"object_name": "Crate",
		"color":       []float64{2, 0, 0, 1},
	})
	if !strings.Contains(msg, "out of range") {
		t.Fatalf("error = %q", msg)
	}
}

func TestCollections(t *testing.T) {
	s, reg := newTestRegistry(t, Features{})
	call(t, reg, "create_object", map[string]any{"type": "CUBE", "name": "Crate"})
	call(t, reg, "create_collection", map[string]string{"name": "Props"})
	call(t, reg, "move_to_collection", map[string]string{"object_name": "Crate", "collection": "Props"})

	obj, err := s.Object("Crate")
	if err != nil {
		t.Fatalf("Object: %v", err)
	}
	if obj.Collection != "Props" {
		t.Fatalf("collection = %q", obj.Collection)
	}

	if msg := callErr(t, reg, "create_collection", map[string]string{"name": "Props"}); !strings.Contains(msg, "already exists") {
		t.Fatalf("error = %q", msg)
	}
	if msg := callErr(t, reg, "move_to_collection", map[string]string{"object_name": "Crate", "collection": "Nope"}); !strings.Contains(msg, "not found") {
		t.Fatalf("error = %q", msg)
	}
}

func TestSceneInfoCapsObjectListing(t *testing.T) {
	s, reg := newTestRegistry(t, Features{})
	for i := 0; i < 14; i++ {
		if _, err := s.CreateObject("CUBE", "Box", Vec3{}, Vec3{}, Vec3{}); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	out := call(t, reg, "get_scene_info", nil)
	var info struct {
		ObjectCount int              `json:"object_count"`
		Objects     []map[string]any `json:"objects"`
	}
	json.Unmarshal(out, &info)
	if info.ObjectCount != 14 {
		t.Fatalf("object_count = %d", info.ObjectCount)
	}
	if len(info.Objects) != 10 {
		t.Fatalf("listed objects = %d, want 10", len(info.Objects))
	}
}

func TestDeleteObject(t *testing.T) {
	_, reg := newTestRegistry(t, Features{})
	call(t, reg, "create_object", map[string]any{"type": "CUBE", "name": "Crate"})
	call(t, reg, "delete_object", map[string]string{"name": "Crate"})
	if msg := callErr(t, reg, "delete_object", map[string]string{"name": "Crate"}); !strings.Contains(msg, "not found") {
		t.Fatalf("error = %q", msg)
	}
}

func TestExecuteCodeRecordsRun(t *testing.T) {
	_, reg := newTestRegistry(t, Features{})
	out := call(t, reg, "execute_code", map[string]string{"code": "import bpy\nbpy.ops.mesh.primitive_cube_add()"})
	var res struct {
		Executed   bool `json:"executed"`
		Lines      int  `json:"lines"`
		Executions int  `json:"executions"`
	}
	json.Unmarshal(out, &res)
	if !res.Executed || res.Lines != 2 || res.Executions != 1 {
		t.Fatalf("result = %+v", res)
	}

	if msg := callErr(t, reg, "execute_code", map[string]string{}); !strings.Contains(msg, "required") {
		t.Fatalf("error = %q", msg)
	}
}

func TestScreenshotProducesPNG(t *testing.T) {
	_, reg := newTestRegistry(t, Features{})
	out := call(t, reg, "get_viewport_screenshot", map[string]int{"max_size": 8})
	var shot struct {
		Data     string `json:"data"`
		MimeType string `json:"mime_type"`
		Width    int    `json:"width"`
	}
	json.Unmarshal(out, &shot)
	if shot.MimeType != "image/png" || shot.Width != 8 {
		t.Fatalf("shot = %+v", shot)
	}
	raw, err := base64.StdEncoding.DecodeString(shot.Data)
	if err != nil {
		t.Fatalf("data is not base64: %v", err)
	}
	if len(raw) < 8 || string(raw[1:4]) != "PNG" {
		t.Fatal("data is not a PNG")
	}
}

func TestGenerationGroupIsFeatureGated(t *testing.T) {
	_, reg := newTestRegistry(t, Features{})
	if msg := callErr(t, reg, "import_generated_asset", map[string]string{"name": "X", "result_ref": "u"}); !strings.Contains(msg, "unknown command") {
		t.Fatalf("error = %q", msg)
	}

	_, reg = newTestRegistry(t, Features{Generation: true})
	out := call(t, reg, "import_generated_asset", map[string]string{
		"name":       "GenChair",
		"result_ref": "https://cdn.example.com/model.glb",
	})
	var obj Object
	json.Unmarshal(out, &obj)
	if obj.Type != "MESH" || obj.SourceRef != "https://cdn.example.com/model.glb" {
		t.Fatalf("imported = %+v", obj)
	}

	if msg := callErr(t, reg, "import_generated_asset", map[string]string{"name": "X"}); !strings.Contains(msg, "required") {
		t.Fatalf("error = %q", msg)
	}
}

func TestSaveBlend(t *testing.T) {
	_, reg := newTestRegistry(t, Features{})
	out := call(t, reg, "save_blend", map[string]string{})
	if !strings.Contains(string(out), "untitled.blend") {
		t.Fatalf("default save = %s", out)
	}
	out = call(t, reg, "save_blend", map[string]string{"filepath": "/tmp/work.blend"})
	if !strings.Contains(string(out), "/tmp/work.blend") {
		t.Fatalf("save = %s", out)
	}
}
