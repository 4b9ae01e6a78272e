package config

// Category maps a source category slug to its display name.
type Category struct {
	Slug string
	Name string
}

// Categories is the crawl order for a full run. The slug is part of the
// source URL; the name is what ends up on canonical records.
var Categories = []Category{
	{"carros-motos", "Carros & Motos"},
	{"caminhoes-onibus", "Caminhões & Ônibus"},
	{"imoveis", "Imóveis"},
	{"maquinas-pesadas-agricolas", "Máquinas Pesadas & Agrícolas"},
	{"tecnologia", "Tecnologia"},
	{"eletrodomesticos", "Eletrodomésticos"},
	{"moveis-e-decoracao", "Móveis e Decoração"},
	{"industrial-maquinas-equipamentos", "Industrial, Máquinas & Equipamentos"},
	{"materiais-para-construcao-civil", "Materiais para Construção Civil"},
	{"movimentacao-transporte", "Movimentação & Transporte"},
	{"embarcacoes-aeronaves", "Embarcações & Aeronaves"},
	{"partes-e-pecas", "Partes e Peças"},
	{"sucatas-materiais-residuos", "Sucatas, Materiais & Resíduos"},
	{"bolsas-canetas-joias-e-relogios", "Bolsas, Canetas, Joias e Relógios"},
	{"artes-decoracao-colecionismo", "Artes, Decoração & Colecionismo"},
	{"oportunidades", "Oportunidades"},
	{"cozinhas-e-restaurantes", "Cozinhas e Restaurantes"},
	{"alimentos-e-bebidas", "Alimentos e Bebidas"},
	{"animais", "Animais"},
}

// CategoryName returns the display name for a slug.
func CategoryName(slug string) (string, bool) {
	for _, c := range Categories {
		if c.Slug == slug {
			return c.Name, true
		}
	}
	return "", false
}
