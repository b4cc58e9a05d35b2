package conf

import (
	"fmt"
)

// Bootstrap 服务启动配置
type Bootstrap struct {
	Server       *Server       `yaml:"server" json:"server"`
	Data         *Data         `yaml:"data" json:"data"`
	ECPay        *ECPay        `yaml:"ecpay" json:"ecpay"`
	Subscription *Subscription `yaml:"subscription" json:"subscription"`
	Log          *Log          `yaml:"log" json:"log"`
}

// Server HTTP 服务配置
type Server struct {
	Http struct {
		Addr    string `yaml:"addr" json:"addr"`
		Timeout string `yaml:"timeout" json:"timeout"`
	} `yaml:"http" json:"http"`
}

// Data 数据层配置
type Data struct {
	Database struct {
		Driver string `yaml:"driver" json:"driver"`
		Source string `yaml:"source" json:"source"`
	} `yaml:"database" json:"database"`
	Redis struct {
		Addr         string `yaml:"addr" json:"addr"`
		Password     string `yaml:"password" json:"password"`
		Db           int32  `yaml:"db" json:"db"`
		ReadTimeout  string `yaml:"read_timeout" json:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout" json:"write_timeout"`
	} `yaml:"redis" json:"redis"`
	Rocketmq *Rocketmq `yaml:"rocketmq" json:"rocketmq"`
}

// Rocketmq 支付完成事件发布配置
type Rocketmq struct {
	Enabled     bool     `yaml:"enabled" json:"enabled"`
	NameServers []string `yaml:"name_servers" json:"name_servers"`
	GroupName   string   `yaml:"group_name" json:"group_name"`
	Topic       string   `yaml:"topic" json:"topic"`
	RetryTimes  int32    `yaml:"retry_times" json:"retry_times"`
}

// ECPay 绿界商户配置
// 测试/正式端点由 TestMode 决定，配置注入，不使用包级全局
type ECPay struct {
	MerchantID     string `yaml:"merchant_id" json:"merchant_id"`
	HashKey        string `yaml:"hash_key" json:"hash_key"`
	HashIV         string `yaml:"hash_iv" json:"hash_iv"`
	TestMode       bool   `yaml:"test_mode" json:"test_mode"`
	ReturnURL      string `yaml:"return_url" json:"return_url"`
	ClientBackURL  string `yaml:"client_back_url" json:"client_back_url"`
	OrderResultURL string `yaml:"order_result_url" json:"order_result_url"`
}

// Subscription 订阅侧配置
type Subscription struct {
	// TradeDescPrefix 交易描述前缀（出现在绿界收银台）
	TradeDescPrefix string `yaml:"trade_desc_prefix" json:"trade_desc_prefix"`
}

// Log 日志配置
type Log struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	Output     string `yaml:"output" json:"output"`
	FilePath   string `yaml:"file_path" json:"file_path"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// Validate 校验配置完整性
func (b *Bootstrap) Validate() error {
	if b.Server == nil {
		return fmt.Errorf("server configuration is required")
	}
	if b.Server.Http.Addr == "" {
		return fmt.Errorf("server.http.addr is required")
	}
	if b.Data == nil {
		return fmt.Errorf("data configuration is required")
	}
	if b.Data.Database.Source == "" {
		return fmt.Errorf("data.database.source is required")
	}
	if b.ECPay == nil {
		return fmt.Errorf("ecpay configuration is required")
	}
	if b.ECPay.MerchantID == "" {
		return fmt.Errorf("ecpay.merchant_id is required")
	}
	if b.ECPay.HashKey == "" {
		return fmt.Errorf("ecpay.hash_key is required")
	}
	if b.ECPay.HashIV == "" {
		return fmt.Errorf("ecpay.hash_iv is required")
	}
	if b.ECPay.ReturnURL == "" {
		return fmt.Errorf("ecpay.return_url is required")
	}
	return nil
}
