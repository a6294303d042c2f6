package semantic

import (
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"

	"github.com/mealscout/mealscout/engine/domain"
)

func itemPayload(id string, item domain.FoodItem) map[string]*pb.Value {
	ingredients := make([]any, len(item.Ingredients))
	for i, s := range item.Ingredients {
		ingredients[i] = s
	}
	// Features are stored as a list of {name, value} so their order survives.
	features := make([]any, len(item.Features))
	for i, f := range item.Features {
		features[i] = map[string]any{"name": f.Name, "value": f.Value}
	}
	return map[string]*pb.Value{
		keyID:          toValue(id),
		keyName:        toValue(item.Name),
		keyDescription: toValue(item.Description),
		keyCuisine:     toValue(item.CuisineType),
		keyCalories:    toValue(item.CaloriesPerServing),
		keyIngredients: toValue(ingredients),
		keyBenefits:    toValue(item.HealthBenefits),
		keyMethod:      toValue(item.CookingMethod),
		keyTaste:       toValue(item.TasteProfile),
		keyFeatures:    toValue(features),
	}
}

func payloadItem(p map[string]*pb.Value) domain.FoodItem {
	item := domain.FoodItem{
		ID:                 p[keyID].GetStringValue(),
		Name:               p[keyName].GetStringValue(),
		Description:        p[keyDescription].GetStringValue(),
		CuisineType:        p[keyCuisine].GetStringValue(),
		CaloriesPerServing: int(p[keyCalories].GetIntegerValue()),
		Ingredients:        []string{},
		HealthBenefits:     p[keyBenefits].GetStringValue(),
		CookingMethod:      p[keyMethod].GetStringValue(),
		TasteProfile:       p[keyTaste].GetStringValue(),
	}
	for _, v := range p[keyIngredients].GetListValue().GetValues() {
		item.Ingredients = append(item.Ingredients, v.GetStringValue())
	}
	for _, v := range p[keyFeatures].GetListValue().GetValues() {
		fields := v.GetStructValue().GetFields()
		item.Features = append(item.Features, domain.Feature{
			Name:  fields["name"].GetStringValue(),
			Value: fromValue(fields["value"]),
		})
	}
	if item.CuisineType == "" {
		item.CuisineType = domain.DefaultCuisine
	}
	return item
}

func toValue(v any) *pb.Value {
	switch tv := v.(type) {
	case nil:
		return &pb.Value{Kind: &pb.Value_NullValue{NullValue: pb.NullValue_NULL_VALUE}}
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
	case uint64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
	case []any:
		vals := make([]*pb.Value, len(tv))
		for i, e := range tv {
			vals[i] = toValue(e)
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: vals}}}
	case map[string]any:
		fields := make(map[string]*pb.Value, len(tv))
		for k, e := range tv {
			fields[k] = toValue(e)
		}
		return &pb.Value{Kind: &pb.Value_StructValue{StructValue: &pb.Struct{Fields: fields}}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
	}
}

func fromValue(v *pb.Value) any {
	switch k := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return k.StringValue
	case *pb.Value_IntegerValue:
		return k.IntegerValue
	case *pb.Value_DoubleValue:
		return k.DoubleValue
	case *pb.Value_BoolValue:
		return k.BoolValue
	case *pb.Value_ListValue:
		out := make([]any, 0, len(k.ListValue.GetValues()))
		for _, e := range k.ListValue.GetValues() {
			out = append(out, fromValue(e))
		}
		return out
	case *pb.Value_StructValue:
		out := make(map[string]any, len(k.StructValue.GetFields()))
		for name, e := range k.StructValue.GetFields() {
			out[name] = fromValue(e)
		}
		return out
	default:
		return nil
	}
}
