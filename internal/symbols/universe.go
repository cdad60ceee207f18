package symbols

import "pitscout/pkg/model"

// Universe represents a predefined stock universe
type Universe string

const (
	UniverseSample Universe = "sample" // large caps across both exchanges
	UniverseTest   Universe = "test"   // Small set for testing
)

// GetUniverse returns the stocks of a predefined universe, nil when unknown
func GetUniverse(u Universe) []model.Stock {
	switch u {
	case UniverseSample:
		return SampleStocks
	case UniverseTest:
		return SampleStocks[:5]
	default:
		return nil
	}
}

// SampleStocks is a fixed set of liquid A-shares
var SampleStocks = []model.Stock{
	{Code: "600519.SS", Name: "贵州茅台", Province: "贵州"},
	{Code: "000858.SZ", Name: "五粮液", Province: "四川"},
	{Code: "601318.SS", Name: "中国平安", Province: "广东"},
	{Code: "600036.SS", Name: "招商银行", Province: "广东"},
	{Code: "000333.SZ", Name: "美的集团", Province: "广东"},
	{Code: "300750.SZ", Name: "宁德时代", Province: "福建"},
	{Code: "002594.SZ", Name: "比亚迪", Province: "广东"},
	{Code: "600276.SS", Name: "恒瑞医药", Province: "江苏"},
	{Code: "601012.SS", Name: "隆基绿能", Province: "陕西"},
	{Code: "000001.SZ", Name: "平安银行", Province: "广东"},
	{Code: "600900.SS", Name: "长江电力", Province: "湖北"},
	{Code: "601888.SS", Name: "中国中免", Province: "北京"},
	{Code: "002415.SZ", Name: "海康威视", Province: "浙江"},
	{Code: "600030.SS", Name: "中信证券", Province: "广东"},
	{Code: "601969.SS", Name: "海南矿业", Province: "海南"},
	{Code: "603212.SS", Name: "赛伍技术", Province: "江苏"},
}
